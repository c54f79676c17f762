// Package scoring provides the anomaly detection contract and a
// deterministic heuristic scorer. The model internals are a black box to
// the rest of the pipeline; only the contract matters: a bounded score
// in [0,1], a factor breakdown, and exactly one persisted detection per
// processed event.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/veridian-systems/veridian/internal/fault"
	"github.com/veridian-systems/veridian/internal/models"
	"github.com/veridian-systems/veridian/internal/repository"
)

// Scorer produces a NeuralDetection for a processed event. Implementations
// must be deterministic for identical input within a model version.
type Scorer interface {
	Score(ctx context.Context, event *models.ProcessedEvent) (*models.NeuralDetection, error)
}

// HeuristicScorer scores events from normalized network attributes. It
// stands in for the trained model behind the same contract.
type HeuristicScorer struct {
	repo         repository.Repository
	modelVersion string
}

const modelVersion = "heuristic-v1"

// Ports commonly associated with remote access tooling.
var suspiciousPorts = map[int]bool{
	1337:  true,
	4444:  true,
	5555:  true,
	6666:  true,
	31337: true,
}

func NewHeuristicScorer(repo repository.Repository) *HeuristicScorer {
	return &HeuristicScorer{repo: repo, modelVersion: modelVersion}
}

// Score validates the event, computes the anomaly score, and persists the
// detection. A second call for the same event returns the already
// persisted detection rather than writing a duplicate.
func (s *HeuristicScorer) Score(ctx context.Context, event *models.ProcessedEvent) (*models.NeuralDetection, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	factors, err := s.factors(event)
	if err != nil {
		return nil, &fault.ScoringError{ProcessedEventID: event.ID, Err: err}
	}

	score := combine(factors)
	if score < 0 || score > 1 {
		// The model must never emit an out-of-bounds score; surface it
		// instead of clamping silently.
		return nil, &fault.ScoringError{
			ProcessedEventID: event.ID,
			Err:              fmt.Errorf("score %v outside [0,1]", score),
		}
	}

	detection := &models.NeuralDetection{
		ID:               uuid.New().String(),
		ProcessedEventID: event.ID,
		AnomalyScore:     score,
		Factors:          factors,
		ModelVersion:     s.modelVersion,
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.repo.CreateDetection(ctx, detection); err != nil {
		if errors.Is(err, repository.ErrDetectionExists) {
			return s.repo.GetDetectionByEvent(ctx, event.ID)
		}
		return nil, fmt.Errorf("failed to persist detection: %w", err)
	}

	return detection, nil
}

func validateEvent(event *models.ProcessedEvent) error {
	if event == nil {
		return fault.Validation("processed_event", "missing")
	}
	if event.ID == "" {
		return fault.Validation("id", "must not be empty")
	}
	if event.SourceIP == "" {
		return fault.Validation("source_ip", "must not be empty")
	}
	if event.DestIP == "" {
		return fault.Validation("dest_ip", "must not be empty")
	}
	if event.DestPort < 0 || event.DestPort > 65535 {
		return fault.Validation("dest_port", fmt.Sprintf("out of range: %d", event.DestPort))
	}
	if event.Protocol == "" {
		return fault.Validation("protocol", "must not be empty")
	}
	if event.Timestamp.IsZero() {
		return fault.Validation("timestamp", "must be set")
	}
	return nil
}

func (s *HeuristicScorer) factors(event *models.ProcessedEvent) (map[string]float64, error) {
	srcIP := net.ParseIP(event.SourceIP)
	if srcIP == nil {
		return nil, fmt.Errorf("unparseable source address %q", event.SourceIP)
	}

	return map[string]float64{
		"port_risk":       portRisk(event.DestPort),
		"protocol_risk":   protocolRisk(event.Protocol),
		"off_hours":       offHoursRisk(event.Timestamp),
		"external_source": externalSourceRisk(srcIP),
	}, nil
}

func portRisk(port int) float64 {
	switch {
	case suspiciousPorts[port]:
		return 1.0
	case port >= 8000:
		return 0.6
	case port < 1024:
		return 0.3
	default:
		return 0.2
	}
}

func protocolRisk(protocol string) float64 {
	switch protocol {
	case "ICMP":
		return 0.5
	case "UDP":
		return 0.4
	case "TCP":
		return 0.3
	default:
		return 0.45
	}
}

func offHoursRisk(ts time.Time) float64 {
	hour := ts.UTC().Hour()
	if hour < 6 || hour >= 22 {
		return 0.7
	}
	return 0.2
}

func externalSourceRisk(ip net.IP) float64 {
	if ip.IsPrivate() || ip.IsLoopback() {
		return 0.2
	}
	return 0.6
}

// combine averages the factor contributions with port risk weighted
// double, since port targeting is the strongest single signal the
// heuristic sees.
func combine(factors map[string]float64) float64 {
	sum := factors["port_risk"]*2 +
		factors["protocol_risk"] +
		factors["off_hours"] +
		factors["external_source"]
	return sum / 5
}
