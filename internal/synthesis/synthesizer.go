// Package synthesis fuses the anomaly signal and the rule evaluation set
// into at most one alert per processed event.
package synthesis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veridian-systems/veridian/internal/config"
	"github.com/veridian-systems/veridian/internal/fault"
	"github.com/veridian-systems/veridian/internal/models"
	"github.com/veridian-systems/veridian/internal/repository"
)

// Synthesizer decides whether a processed event warrants an alert and, if
// so, computes classification and composite risk. It creates nothing but
// the alert: explanations and decisions belong to later layers.
type Synthesizer struct {
	repo   repository.Repository
	policy config.ReasoningConfig
}

func NewSynthesizer(repo repository.Repository, policy config.ReasoningConfig) (*Synthesizer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Synthesizer{repo: repo, policy: policy}, nil
}

// Synthesize evaluates the alerting policy for one processed event.
// Returns (nil, nil) when no alert is warranted. When multiple rules
// matched, exactly one alert is produced carrying the highest matched
// severity. Calling twice for the same event returns the existing alert.
func (s *Synthesizer) Synthesize(ctx context.Context, event *models.ProcessedEvent, detection *models.NeuralDetection, evaluations []*models.RuleEvaluation) (*models.Alert, error) {
	if event == nil || event.ID == "" {
		return nil, fault.Validation("processed_event", "missing")
	}
	if detection == nil {
		return nil, fault.Validation("detection", "missing")
	}
	if detection.AnomalyScore < 0 || detection.AnomalyScore > 1 {
		return nil, fault.Validation("anomaly_score",
			fmt.Sprintf("out of range: %v", detection.AnomalyScore))
	}

	classification, matchedRuleIDs := consolidate(evaluations)

	highSeverityMatch := classification == models.SeverityHigh
	highAnomaly := detection.AnomalyScore > s.policy.HighAnomalyThreshold
	if !highSeverityMatch && !highAnomaly {
		return nil, nil
	}

	// An alert driven purely by anomaly signal has no matched severity
	// to inherit; it enters triage as MEDIUM.
	if classification == "" {
		classification = models.SeverityMedium
	}

	alert := &models.Alert{
		ID:                 newAlertID(),
		ProcessedEventID:   event.ID,
		Classification:     classification,
		CompositeRiskScore: s.CompositeRisk(detection.AnomalyScore, maxMatchedSeverity(evaluations)),
		Status:             models.AlertStatusPending,
		MatchedRuleIDs:     matchedRuleIDs,
		CreatedAt:          time.Now().UTC(),
	}

	stored, _, err := s.repo.CreateAlertIfAbsent(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize alert: %w", err)
	}
	return stored, nil
}

// consolidate deduplicates matched evaluations into a single
// classification (the highest matched severity) and the matched rule ids.
func consolidate(evaluations []*models.RuleEvaluation) (string, []string) {
	var classification string
	matched := []string{}
	for _, eval := range evaluations {
		if !eval.Matched {
			continue
		}
		matched = append(matched, eval.RuleID)
		classification = models.MaxSeverity(classification, eval.RuleSeverity)
	}
	return classification, matched
}

func maxMatchedSeverity(evaluations []*models.RuleEvaluation) string {
	severity := ""
	for _, eval := range evaluations {
		if eval.Matched {
			severity = models.MaxSeverity(severity, eval.RuleSeverity)
		}
	}
	return severity
}

// CompositeRisk maps the anomaly score and the highest matched severity
// to a [0,100] risk value. The formula is a weighted mean:
//
//	risk = 100 * (wa*anomaly + wr*sevFrac) / (wa + wr)
//
// Both weights are validated positive, so the result is monotonic in the
// anomaly score and in the severity rank, and bounded by construction.
func (s *Synthesizer) CompositeRisk(anomalyScore float64, severity string) float64 {
	wa := s.policy.AnomalyWeight
	wr := s.policy.RuleWeight
	risk := 100 * (wa*anomalyScore + wr*severityFraction(severity)) / (wa + wr)
	return clamp(risk, 0, 100)
}

// severityFraction places each severity on the risk scale. No match
// contributes nothing.
func severityFraction(severity string) float64 {
	switch severity {
	case models.SeverityHigh:
		return 1.0
	case models.SeverityMedium:
		return 0.65
	case models.SeverityLow:
		return 0.35
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func newAlertID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
