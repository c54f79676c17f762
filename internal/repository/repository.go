package repository

import (
	"context"
	"errors"

	"github.com/veridian-systems/veridian/internal/models"
)

var (
	ErrDetectionNotFound   = errors.New("detection not found")
	ErrDetectionExists     = errors.New("detection already exists for event")
	ErrAlertNotFound       = errors.New("alert not found")
	ErrExplanationNotFound = errors.New("explanation not found")
	ErrDecisionNotFound    = errors.New("decision not found")
	ErrRuleExists          = errors.New("rule already exists")
)

// Repository defines persistence for the reasoning chain. There is
// deliberately no update or delete method for detections, evaluations,
// explanations, decisions, or audit entries: those records are
// write-once, and the interface offering no mutation path is the first
// line of enforcement.
type Repository interface {
	// Detection operations
	CreateDetection(ctx context.Context, d *models.NeuralDetection) error
	GetDetectionByEvent(ctx context.Context, processedEventID string) (*models.NeuralDetection, error)

	// Rule evaluation operations
	CreateEvaluations(ctx context.Context, evals []*models.RuleEvaluation) error
	ListEvaluationsForEvent(ctx context.Context, processedEventID string) ([]*models.RuleEvaluation, error)

	// Rule operations (rules are authored externally; the core only
	// stores and reads them)
	CreateRule(ctx context.Context, r *models.Rule) error
	ListEnabledRules(ctx context.Context) ([]*models.Rule, error)

	// Alert operations. CreateAlertIfAbsent is an atomic
	// upsert-or-fetch keyed by processed event ID: it returns the
	// stored alert and whether this call created it.
	CreateAlertIfAbsent(ctx context.Context, a *models.Alert) (*models.Alert, bool, error)
	GetAlertByID(ctx context.Context, id string) (*models.Alert, error)
	GetAlertByEvent(ctx context.Context, processedEventID string) (*models.Alert, error)
	ListAlerts(ctx context.Context, status string) ([]*models.Alert, error)
	UpdateAlertStatus(ctx context.Context, alertID, status string) error

	// Explanation operations. Same upsert-or-fetch shape, keyed by
	// alert ID.
	CreateExplanationIfAbsent(ctx context.Context, e *models.Explanation) (*models.Explanation, bool, error)
	GetExplanationByAlert(ctx context.Context, alertID string) (*models.Explanation, error)

	// Decision operations. AppendDecision writes the decision and its
	// audit entry atomically; appends for one alert are serialized so
	// decision timestamps are non-decreasing per alert.
	AppendDecision(ctx context.Context, d *models.Decision, entry *models.AuditEntry) error
	GetDecisionByID(ctx context.Context, id string) (*models.Decision, error)
	ListDecisionsForAlert(ctx context.Context, alertID string) ([]*models.Decision, error)
	ListDecisionsByAnalyst(ctx context.Context, analystID string) ([]*models.Decision, error)
	DecisionStats(ctx context.Context, analystID string) (*models.DecisionStats, error)

	// Audit operations
	ListAuditEntries(ctx context.Context, resourceID string) ([]*models.AuditEntry, error)

	// Utility
	Close() error
}
