package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridian-systems/veridian/internal/fault"
	"github.com/veridian-systems/veridian/internal/models"
	"github.com/veridian-systems/veridian/internal/repository"
)

func patternRule(ruleID string, port int, severity string, enabled bool) *models.Rule {
	return &models.Rule{
		ID:         ruleID,
		RuleID:     ruleID,
		Name:       ruleID,
		Category:   models.CategoryPattern,
		Conditions: map[string]interface{}{"dest_port": port},
		Severity:   severity,
		Enabled:    enabled,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestEvaluate_OneRecordPerEnabledRule(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	e := NewEvaluator(repo)

	ruleSet := []*models.Rule{
		patternRule("R-MATCH", 4444, models.SeverityHigh, true),
		patternRule("R-MISS", 22, models.SeverityLow, true),
		patternRule("R-DISABLED", 4444, models.SeverityHigh, false),
	}

	evals, err := e.Evaluate(context.Background(), testEvent(), ruleSet, EvaluationContext{})
	require.NoError(t, err)
	require.Len(t, evals, 2, "disabled rules must produce no evaluation record")

	byRule := map[string]*models.RuleEvaluation{}
	for _, eval := range evals {
		byRule[eval.RuleID] = eval
	}
	assert.True(t, byRule["R-MATCH"].Matched)
	assert.False(t, byRule["R-MISS"].Matched)
	assert.NotContains(t, byRule, "R-DISABLED")

	// The full set is persisted.
	stored, err := repo.ListEvaluationsForEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestEvaluate_Confidence(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	e := NewEvaluator(repo)

	rangeRule := &models.Rule{
		RuleID:     "R-RANGE",
		Category:   models.CategoryRange,
		Conditions: map[string]interface{}{"min_port": 4000},
		Severity:   models.SeverityMedium,
		Enabled:    true,
	}
	ruleSet := []*models.Rule{
		patternRule("R-PATTERN", 4444, models.SeverityHigh, true),
		rangeRule,
	}

	quiet, err := e.Evaluate(context.Background(), testEvent(), ruleSet, EvaluationContext{RecentEventCount: 5})
	require.NoError(t, err)

	byRule := map[string]float64{}
	for _, eval := range quiet {
		byRule[eval.RuleID] = eval.Confidence
	}
	assert.Equal(t, 1.0, byRule["R-PATTERN"])
	assert.Equal(t, 0.75, byRule["R-RANGE"])

	event := testEvent()
	event.ID = "evt-2"
	busy, err := e.Evaluate(context.Background(), event, ruleSet, EvaluationContext{RecentEventCount: 500})
	require.NoError(t, err)
	for _, eval := range busy {
		if eval.RuleID == "R-RANGE" {
			assert.Equal(t, 0.85, eval.Confidence)
		}
	}
}

func TestEvaluate_UnknownCategoryFails(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	e := NewEvaluator(repo)

	ruleSet := []*models.Rule{
		{
			RuleID:     "R-UNKNOWN",
			Category:   "fuzzy",
			Conditions: map[string]interface{}{"dest_port": 4444},
			Severity:   models.SeverityHigh,
			Enabled:    true,
		},
	}

	_, err := e.Evaluate(context.Background(), testEvent(), ruleSet, EvaluationContext{})
	require.Error(t, err)
	assert.True(t, fault.IsConfiguration(err))

	// Nothing is persisted when evaluation aborts.
	stored, err := repo.ListEvaluationsForEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestEvaluate_DoesNotMutateRules(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	e := NewEvaluator(repo)

	rule := patternRule("R-1", 4444, models.SeverityHigh, true)
	before := *rule
	beforeConds := map[string]interface{}{}
	for k, v := range rule.Conditions {
		beforeConds[k] = v
	}

	_, err := e.Evaluate(context.Background(), testEvent(), []*models.Rule{rule}, EvaluationContext{})
	require.NoError(t, err)

	assert.Equal(t, before.Severity, rule.Severity)
	assert.Equal(t, beforeConds, rule.Conditions)
}
