// Package rules evaluates operator-authored declarative rules against
// processed events. Rules are read-mostly configuration: the evaluator
// never mutates a rule, and a rule edit never rewrites an already
// persisted evaluation.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veridian-systems/veridian/internal/models"
	"github.com/veridian-systems/veridian/internal/repository"
)

// EvaluationContext carries contextual counters that influence match
// confidence. The zero value is valid when no activity tracking is
// available.
type EvaluationContext struct {
	RecentEventCount int64
}

// busyWindowThreshold is the recent-event count above which range
// matches gain confidence: sustained volume makes a bounds hit less
// likely to be a one-off.
const busyWindowThreshold = 100

// Evaluator matches processed events against the enabled rule set and
// persists one evaluation record per rule considered.
type Evaluator struct {
	repo repository.Repository
}

func NewEvaluator(repo repository.Repository) *Evaluator {
	return &Evaluator{repo: repo}
}

// Evaluate produces one RuleEvaluation per enabled rule. Disabled rules
// are skipped entirely. The full evaluation set is persisted atomically.
func (e *Evaluator) Evaluate(ctx context.Context, event *models.ProcessedEvent, ruleSet []*models.Rule, evalCtx EvaluationContext) ([]*models.RuleEvaluation, error) {
	now := time.Now().UTC()

	evals := make([]*models.RuleEvaluation, 0, len(ruleSet))
	for _, rule := range ruleSet {
		if !rule.Enabled {
			continue
		}

		cond, err := Compile(rule)
		if err != nil {
			return nil, err
		}

		matched := cond.Matches(event)
		evals = append(evals, &models.RuleEvaluation{
			ID:               uuid.New().String(),
			ProcessedEventID: event.ID,
			RuleID:           rule.RuleID,
			RuleSeverity:     rule.Severity,
			Matched:          matched,
			Confidence:       confidence(rule, matched, evalCtx),
			CreatedAt:        now,
		})
	}

	if err := e.repo.CreateEvaluations(ctx, evals); err != nil {
		return nil, fmt.Errorf("failed to persist evaluations: %w", err)
	}

	return evals, nil
}

// confidence is a pure function of (rule, match outcome, context).
// Pattern rules assert exact equality and carry full confidence; range
// matches are weaker, with a small boost during busy windows.
func confidence(rule *models.Rule, matched bool, evalCtx EvaluationContext) float64 {
	if !matched {
		return 0
	}
	switch rule.Category {
	case models.CategoryPattern:
		return 1.0
	case models.CategoryRange:
		c := 0.75
		if evalCtx.RecentEventCount > busyWindowThreshold {
			c += 0.1
		}
		return c
	default:
		return 0.5
	}
}
