package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridian-systems/veridian/internal/models"
)

func memAlert(id, eventID string) *models.Alert {
	return &models.Alert{
		ID:                 id,
		ProcessedEventID:   eventID,
		Classification:     models.SeverityHigh,
		CompositeRiskScore: 80,
		Status:             models.AlertStatusPending,
		MatchedRuleIDs:     []string{"NET-REVERSE-SHELL"},
		CreatedAt:          time.Now().UTC(),
	}
}

func TestMemoryAlertUpsert(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	first, created, err := repo.CreateAlertIfAbsent(ctx, memAlert("alert-1", "evt-1"))
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.CreateAlertIfAbsent(ctx, memAlert("alert-2", "evt-1"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	alerts, err := repo.ListAlerts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestMemoryListAlertsByStatus(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	_, _, err := repo.CreateAlertIfAbsent(ctx, memAlert("alert-1", "evt-1"))
	require.NoError(t, err)
	_, _, err = repo.CreateAlertIfAbsent(ctx, memAlert("alert-2", "evt-2"))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateAlertStatus(ctx, "alert-1", models.AlertStatusConfirmed))

	pending, err := repo.ListAlerts(ctx, models.AlertStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "alert-2", pending[0].ID)

	confirmed, err := repo.ListAlerts(ctx, models.AlertStatusConfirmed)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "alert-1", confirmed[0].ID)
}

func TestMemoryReturnsCopies(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	_, _, err := repo.CreateAlertIfAbsent(ctx, memAlert("alert-1", "evt-1"))
	require.NoError(t, err)

	got, err := repo.GetAlertByID(ctx, "alert-1")
	require.NoError(t, err)
	got.Classification = models.SeverityLow
	got.MatchedRuleIDs[0] = "tampered"

	fresh, err := repo.GetAlertByID(ctx, "alert-1")
	require.NoError(t, err)
	assert.Equal(t, models.SeverityHigh, fresh.Classification)
	assert.Equal(t, []string{"NET-REVERSE-SHELL"}, fresh.MatchedRuleIDs)
}

func TestMemoryRuleCopies(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	rule := &models.Rule{
		ID:         "rule-1",
		RuleID:     "NET-REVERSE-SHELL",
		Name:       "Reverse shell port",
		Category:   models.CategoryPattern,
		Conditions: map[string]interface{}{"dest_port": 4444},
		Severity:   models.SeverityHigh,
		Enabled:    true,
	}
	require.NoError(t, repo.CreateRule(ctx, rule))
	assert.ErrorIs(t, repo.CreateRule(ctx, rule), ErrRuleExists)

	listed, err := repo.ListEnabledRules(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	listed[0].Conditions["dest_port"] = 9999

	fresh, err := repo.ListEnabledRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4444, fresh[0].Conditions["dest_port"])
}

func TestMemoryAppendDecisionRequiresAlert(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	decision := &models.Decision{
		ID:                "dec-1",
		AlertID:           "missing",
		AnalystID:         "analyst-1",
		Action:            models.ActionApprove,
		Reasoning:         "Looks real.",
		Confidence:        0.9,
		DecisionTimestamp: time.Now().UTC(),
	}
	entry := &models.AuditEntry{ID: "audit-1", ResourceID: "dec-1"}

	err := repo.AppendDecision(ctx, decision, entry)
	assert.ErrorIs(t, err, ErrAlertNotFound)

	_, err = repo.GetDecisionByID(ctx, "dec-1")
	assert.ErrorIs(t, err, ErrDecisionNotFound)
	entries, err := repo.ListAuditEntries(ctx, "dec-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryDecisionTimestampsNonDecreasing(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	_, _, err := repo.CreateAlertIfAbsent(ctx, memAlert("alert-1", "evt-1"))
	require.NoError(t, err)

	base := time.Now().UTC()
	for i, ts := range []time.Time{base, base.Add(-time.Hour), base.Add(time.Minute)} {
		decision := &models.Decision{
			ID:                string(rune('a' + i)),
			AlertID:           "alert-1",
			AnalystID:         "analyst-1",
			Action:            models.ActionEscalate,
			Reasoning:         "Chain entry.",
			Confidence:        0.5,
			DecisionTimestamp: ts,
		}
		entry := &models.AuditEntry{ID: decision.ID + "-audit", ResourceID: decision.ID}
		require.NoError(t, repo.AppendDecision(ctx, decision, entry))
	}

	decisions, err := repo.ListDecisionsForAlert(ctx, "alert-1")
	require.NoError(t, err)
	require.Len(t, decisions, 3)
	for i := 1; i < len(decisions); i++ {
		assert.False(t, decisions[i].DecisionTimestamp.Before(decisions[i-1].DecisionTimestamp))
	}
}
