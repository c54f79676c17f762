// Package seeder generates realistic rules and processed events for
// demos and load testing.
package seeder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/veridian-systems/veridian/internal/models"
)

var protocols = []string{"TCP", "TCP", "TCP", "UDP", "ICMP"}

var seedRules = []struct {
	ruleID     string
	name       string
	category   string
	conditions map[string]interface{}
	severity   string
}{
	{
		ruleID:     "NET-REVERSE-SHELL",
		name:       "Reverse shell port",
		category:   models.CategoryPattern,
		conditions: map[string]interface{}{"dest_port": 4444},
		severity:   models.SeverityHigh,
	},
	{
		ruleID:     "NET-ELITE-PORT",
		name:       "Elite backdoor port",
		category:   models.CategoryPattern,
		conditions: map[string]interface{}{"dest_port": 31337},
		severity:   models.SeverityHigh,
	},
	{
		ruleID:     "NET-HIGH-PORT-RANGE",
		name:       "High ephemeral port range",
		category:   models.CategoryRange,
		conditions: map[string]interface{}{"min_port": 8000},
		severity:   models.SeverityMedium,
	},
	{
		ruleID:     "NET-ICMP-TRAFFIC",
		name:       "ICMP traffic",
		category:   models.CategoryPattern,
		conditions: map[string]interface{}{"protocol": "ICMP"},
		severity:   models.SeverityLow,
	},
}

// GenerateRules returns the built-in demo rule set.
func GenerateRules() []*models.Rule {
	now := time.Now().UTC()
	out := make([]*models.Rule, 0, len(seedRules))
	for _, sr := range seedRules {
		out = append(out, &models.Rule{
			ID:         uuid.New().String(),
			RuleID:     sr.ruleID,
			Name:       sr.name,
			Category:   sr.category,
			Conditions: sr.conditions,
			Severity:   sr.severity,
			Enabled:    true,
			CreatedAt:  now,
		})
	}
	return out
}

// GenerateEvent creates one processed event. Roughly one in five targets
// a suspicious port so seeded runs produce a plausible alert mix.
func GenerateEvent(index int, totalCount int, timeSpread time.Duration) *models.ProcessedEvent {
	now := time.Now().UTC()

	var eventTime time.Time
	if timeSpread > 0 && totalCount > 1 {
		// Jittered distribution: evenly space events with random jitter
		baseInterval := float64(timeSpread) / float64(totalCount)
		baseOffset := time.Duration(float64(index) * baseInterval)
		jitter := time.Duration((rand.Float64()*2.0 - 1.0) * baseInterval * 0.4)

		totalOffset := baseOffset + jitter
		if totalOffset < 0 {
			totalOffset = 0
		}
		if totalOffset > timeSpread {
			totalOffset = timeSpread
		}
		eventTime = now.Add(-(timeSpread - totalOffset))
	} else {
		eventTime = now
	}

	destPort := gofakeit.Number(1, 65535)
	switch rand.Intn(5) {
	case 0:
		destPort = 4444
	case 1:
		destPort = gofakeit.Number(8000, 9999)
	}

	eventID := uuid.New().String()
	event := &models.ProcessedEvent{
		ID:        uuid.New().String(),
		EventID:   eventID,
		EventType: gofakeit.RandomString([]string{"connection", "scan", "transfer", "beacon"}),
		SourceIP:  gofakeit.IPv4Address(),
		DestIP:    fmt.Sprintf("10.0.%d.%d", gofakeit.Number(0, 255), gofakeit.Number(1, 254)),
		DestPort:  destPort,
		Protocol:  gofakeit.RandomString(protocols),
		Timestamp: eventTime,
		CreatedAt: now,
	}
	event.ContentHash = contentHash(event)
	return event
}

func contentHash(e *models.ProcessedEvent) string {
	payload := fmt.Sprintf("%s|%s|%s|%d|%s|%s",
		e.EventID, e.SourceIP, e.DestIP, e.DestPort, e.Protocol,
		e.Timestamp.Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
