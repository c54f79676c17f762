// Package pipeline orchestrates the reasoning chain for one processed
// event: score, evaluate, synthesize, explain. Events may run
// concurrently, but all work touching a single event identity is
// serialized so the one-alert-per-event invariant holds under concurrent
// callers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veridian-systems/veridian/internal/activity"
	"github.com/veridian-systems/veridian/internal/explain"
	"github.com/veridian-systems/veridian/internal/fault"
	"github.com/veridian-systems/veridian/internal/logging"
	"github.com/veridian-systems/veridian/internal/messaging"
	"github.com/veridian-systems/veridian/internal/metrics"
	"github.com/veridian-systems/veridian/internal/models"
	"github.com/veridian-systems/veridian/internal/repository"
	"github.com/veridian-systems/veridian/internal/rules"
	"github.com/veridian-systems/veridian/internal/scoring"
	"github.com/veridian-systems/veridian/internal/synthesis"
)

// Result is the outcome of one pipeline run. Alert and Explanation are
// nil when the event did not warrant an alert.
type Result struct {
	Detection   *models.NeuralDetection
	Evaluations []*models.RuleEvaluation
	Alert       *models.Alert
	Explanation *models.Explanation
}

// Service wires the reasoning components together.
type Service struct {
	repo        repository.Repository
	scorer      scoring.Scorer
	evaluator   *rules.Evaluator
	synthesizer *synthesis.Synthesizer
	builder     *explain.Builder
	tracker     *activity.Tracker
	publisher   messaging.Publisher
	log         *logging.Logger

	// Per-event serialization: concurrent runs for distinct events
	// proceed in parallel, runs for the same event queue up. Entries are
	// reference counted and removed once uncontended so the map does not
	// grow with every event id the consumer ever sees.
	locks   map[string]*eventLock
	locksMu sync.Mutex
}

type eventLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(
	repo repository.Repository,
	scorer scoring.Scorer,
	evaluator *rules.Evaluator,
	synthesizer *synthesis.Synthesizer,
	builder *explain.Builder,
	tracker *activity.Tracker,
	publisher messaging.Publisher,
	log *logging.Logger,
) *Service {
	return &Service{
		repo:        repo,
		scorer:      scorer,
		evaluator:   evaluator,
		synthesizer: synthesizer,
		builder:     builder,
		tracker:     tracker,
		publisher:   publisher,
		log:         log,
		locks:       make(map[string]*eventLock),
	}
}

// Process runs the full reasoning chain for one processed event. A
// scoring or configuration failure aborts this event only; state for
// other events is untouched.
func (s *Service) Process(ctx context.Context, event *models.ProcessedEvent, raw *models.RawEvent) (*Result, error) {
	if event == nil || event.ID == "" {
		return nil, fault.Validation("processed_event", "missing")
	}

	unlock := s.lockEvent(event.ID)
	defer unlock()

	start := time.Now()
	result, err := s.process(ctx, event, raw)
	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EventsProcessed.WithLabelValues("error").Inc()
		return nil, err
	}

	if result.Alert != nil {
		metrics.EventsProcessed.WithLabelValues("alerted").Inc()
	} else {
		metrics.EventsProcessed.WithLabelValues("clean").Inc()
	}
	return result, nil
}

func (s *Service) process(ctx context.Context, event *models.ProcessedEvent, raw *models.RawEvent) (*Result, error) {
	if err := s.tracker.Record(ctx, event.Timestamp); err != nil {
		// Activity counters are advisory.
		s.log.WarnContext(ctx, "activity tracking failed", logging.Error(err))
	}

	recent, err := s.tracker.RecentCount(ctx, event.Timestamp)
	if err != nil {
		s.log.WarnContext(ctx, "activity count unavailable", logging.Error(err))
		recent = 0
	}

	detection, err := s.scorer.Score(ctx, event)
	if err != nil {
		var se *fault.ScoringError
		if errors.As(err, &se) {
			metrics.ScoringErrors.Inc()
		}
		return nil, err
	}

	ruleSet, err := s.repo.ListEnabledRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule set: %w", err)
	}

	evaluations, err := s.evaluator.Evaluate(ctx, event, ruleSet, rules.EvaluationContext{
		RecentEventCount: recent,
	})
	if err != nil {
		return nil, err
	}
	for _, eval := range evaluations {
		if eval.Matched {
			metrics.RuleMatches.Inc()
		}
	}

	result := &Result{Detection: detection, Evaluations: evaluations}

	alert, err := s.synthesizer.Synthesize(ctx, event, detection, evaluations)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		s.log.DebugContext(ctx, "no alert warranted",
			logging.EventID(event.ID), logging.Score(detection.AnomalyScore))
		return result, nil
	}
	result.Alert = alert
	metrics.AlertsCreated.WithLabelValues(alert.Classification).Inc()

	explanation, err := s.builder.Explain(ctx, alert, detection, evaluations, event, raw)
	if err != nil {
		return nil, err
	}
	result.Explanation = explanation

	if err := s.publisher.PublishAlert(alert); err != nil {
		s.log.WarnContext(ctx, "alert publication failed",
			logging.AlertID(alert.ID), logging.Error(err))
	}

	s.log.InfoContext(ctx, "alert synthesized",
		logging.EventID(event.ID),
		logging.AlertID(alert.ID),
		logging.Risk(alert.CompositeRiskScore),
		"classification", alert.Classification)

	return result, nil
}

// GetAlert fetches one alert by id.
func (s *Service) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	a, err := s.repo.GetAlertByID(ctx, id)
	if errors.Is(err, repository.ErrAlertNotFound) {
		return nil, fault.NotFound("alert", id)
	}
	return a, err
}

// ListAlerts returns alerts, optionally filtered by status.
func (s *Service) ListAlerts(ctx context.Context, status string) ([]*models.Alert, error) {
	return s.repo.ListAlerts(ctx, status)
}

// GetExplanation fetches the explanation for an alert.
func (s *Service) GetExplanation(ctx context.Context, alertID string) (*models.Explanation, error) {
	e, err := s.repo.GetExplanationByAlert(ctx, alertID)
	if errors.Is(err, repository.ErrExplanationNotFound) {
		return nil, fault.NotFound("explanation for alert", alertID)
	}
	return e, err
}

func (s *Service) lockEvent(eventID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[eventID]
	if !ok {
		l = &eventLock{}
		s.locks[eventID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, eventID)
		}
		s.locksMu.Unlock()
	}
}
