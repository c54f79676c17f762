// Package ledger records analyst verdicts against alerts. The ledger is
// append-only: it offers no way to alter or remove a decision, and the
// storage layer backs that up with a write-once constraint. Escalation
// chains are supported by allowing any number of sequential decisions
// per alert.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veridian-systems/veridian/internal/audit"
	"github.com/veridian-systems/veridian/internal/fault"
	"github.com/veridian-systems/veridian/internal/logging"
	"github.com/veridian-systems/veridian/internal/metrics"
	"github.com/veridian-systems/veridian/internal/models"
	"github.com/veridian-systems/veridian/internal/repository"
)

// Ledger creates and queries immutable decision records.
type Ledger struct {
	repo   repository.Repository
	signer *audit.Signer
	log    *logging.Logger
}

func NewLedger(repo repository.Repository, signer *audit.Signer, log *logging.Logger) *Ledger {
	return &Ledger{repo: repo, signer: signer, log: log}
}

// Decide validates the verdict, persists the decision together with
// exactly one signed audit entry, and advances the alert's status. All
// validation happens before any write; a rejected decision leaves no
// trace.
func (l *Ledger) Decide(ctx context.Context, alertID, analystID, action, reasoning string, confidence float64) (*models.Decision, error) {
	if alertID == "" {
		return nil, fault.Validation("alert_id", "must not be empty")
	}
	if analystID == "" {
		return nil, fault.Validation("analyst_id", "must not be empty")
	}
	if !models.IsValidAction(action) {
		return nil, fault.Validation("action", fmt.Sprintf("unrecognized action %q", action))
	}
	if strings.TrimSpace(reasoning) == "" {
		return nil, fault.Validation("reasoning", "must not be empty")
	}
	if confidence < 0 || confidence > 1 {
		return nil, fault.Validation("confidence", fmt.Sprintf("out of range: %v", confidence))
	}

	now := time.Now().UTC()
	decision := &models.Decision{
		ID:                newDecisionID(),
		AlertID:           alertID,
		AnalystID:         analystID,
		Action:            action,
		Reasoning:         reasoning,
		Confidence:        confidence,
		DecisionTimestamp: now,
	}

	entry := l.signer.NewEntry(analystID, models.AuditActionCreate, models.AuditResourceDecision, decision.ID, now)

	if err := l.repo.AppendDecision(ctx, decision, entry); err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return nil, fault.NotFound("alert", alertID)
		}
		return nil, fmt.Errorf("failed to record decision: %w", err)
	}

	// Status is the one alert field the decision workflow may advance.
	// The decision itself is already committed and stays committed; the
	// caller must still hear that the advance did not happen.
	if err := l.repo.UpdateAlertStatus(ctx, alertID, statusFor(action)); err != nil {
		l.log.ErrorContext(ctx, "failed to advance alert status",
			logging.AlertID(alertID), logging.Error(err))
		return nil, fmt.Errorf("decision %s recorded but alert status update failed: %w", decision.ID, err)
	}

	metrics.DecisionsRecorded.WithLabelValues(action).Inc()
	l.log.InfoContext(ctx, "decision recorded",
		logging.DecisionID(decision.ID),
		logging.AlertID(alertID),
		logging.AnalystID(analystID),
		"action", action)

	return decision, nil
}

// statusFor maps an analyst action to the alert's next status.
func statusFor(action string) string {
	switch action {
	case models.ActionApprove:
		return models.AlertStatusConfirmed
	case models.ActionReject:
		return models.AlertStatusDismissed
	case models.ActionEscalate:
		return models.AlertStatusEscalated
	default:
		return models.AlertStatusPending
	}
}

// GetDecision fetches one decision by id.
func (l *Ledger) GetDecision(ctx context.Context, id string) (*models.Decision, error) {
	d, err := l.repo.GetDecisionByID(ctx, id)
	if errors.Is(err, repository.ErrDecisionNotFound) {
		return nil, fault.NotFound("decision", id)
	}
	return d, err
}

// ListDecisionsForAlert returns the alert's decision history in append
// order.
func (l *Ledger) ListDecisionsForAlert(ctx context.Context, alertID string) ([]*models.Decision, error) {
	return l.repo.ListDecisionsForAlert(ctx, alertID)
}

// ListDecisionsByAnalyst returns all decisions one analyst has recorded.
func (l *Ledger) ListDecisionsByAnalyst(ctx context.Context, analystID string) ([]*models.Decision, error) {
	return l.repo.ListDecisionsByAnalyst(ctx, analystID)
}

// Statistics aggregates decision history. Pass "" for all analysts.
func (l *Ledger) Statistics(ctx context.Context, analystID string) (*models.DecisionStats, error) {
	return l.repo.DecisionStats(ctx, analystID)
}

// AuditTrail returns the audit entries for one decision, verifying each
// signature. A tampered entry is surfaced as an ImmutabilityViolation.
func (l *Ledger) AuditTrail(ctx context.Context, decisionID string) ([]*models.AuditEntry, error) {
	entries, err := l.repo.ListAuditEntries(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if !l.signer.Verify(entry) {
			return nil, &fault.ImmutabilityViolation{Resource: "audit entry", ID: entry.ID}
		}
	}
	return entries, nil
}

func newDecisionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
