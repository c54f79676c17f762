package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridian-systems/veridian/internal/fault"
	"github.com/veridian-systems/veridian/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL. The
// decisions and audit_log tables carry a forbid_mutation trigger
// (migrations/0001) so write-once guarantees hold even for writers that
// bypass this interface.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Connection pool configuration
	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) CreateDetection(ctx context.Context, d *models.NeuralDetection) error {
	factors, err := json.Marshal(d.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal factors: %w", err)
	}

	query := `
		INSERT INTO neural_detections (id, processed_event_id, anomaly_score, factors, model_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		d.ID, d.ProcessedEventID, d.AnomalyScore, factors, d.ModelVersion, d.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDetectionExists
	}
	if err != nil {
		return fmt.Errorf("failed to create detection: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetDetectionByEvent(ctx context.Context, processedEventID string) (*models.NeuralDetection, error) {
	query := `
		SELECT id, processed_event_id, anomaly_score, factors, model_version, created_at
		FROM neural_detections
		WHERE processed_event_id = $1
	`
	d := &models.NeuralDetection{}
	var factors []byte
	err := r.pool.QueryRow(ctx, query, processedEventID).Scan(
		&d.ID, &d.ProcessedEventID, &d.AnomalyScore, &factors, &d.ModelVersion, &d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDetectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get detection: %w", err)
	}
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &d.Factors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal factors: %w", err)
		}
	}
	return d, nil
}

func (r *PostgresRepository) CreateEvaluations(ctx context.Context, evals []*models.RuleEvaluation) error {
	if len(evals) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO rule_evaluations (id, processed_event_id, rule_id, rule_severity, matched, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, e := range evals {
		if _, err := tx.Exec(ctx, query,
			e.ID, e.ProcessedEventID, e.RuleID, e.RuleSeverity, e.Matched, e.Confidence, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create evaluation: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) ListEvaluationsForEvent(ctx context.Context, processedEventID string) ([]*models.RuleEvaluation, error) {
	query := `
		SELECT id, processed_event_id, rule_id, rule_severity, matched, confidence, created_at
		FROM rule_evaluations
		WHERE processed_event_id = $1
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, processedEventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var out []*models.RuleEvaluation
	for rows.Next() {
		e := &models.RuleEvaluation{}
		if err := rows.Scan(&e.ID, &e.ProcessedEventID, &e.RuleID, &e.RuleSeverity, &e.Matched, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateRule(ctx context.Context, rule *models.Rule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	query := `
		INSERT INTO rules (id, rule_id, name, category, conditions, severity, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		rule.ID, rule.RuleID, rule.Name, rule.Category, conditions, rule.Severity, rule.Enabled, rule.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrRuleExists
	}
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListEnabledRules(ctx context.Context) ([]*models.Rule, error) {
	query := `
		SELECT id, rule_id, name, category, conditions, severity, enabled, created_at
		FROM rules
		WHERE enabled = true
		ORDER BY rule_id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []*models.Rule
	for rows.Next() {
		rule := &models.Rule{}
		var conditions []byte
		if err := rows.Scan(&rule.ID, &rule.RuleID, &rule.Name, &rule.Category, &conditions, &rule.Severity, &rule.Enabled, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateAlertIfAbsent(ctx context.Context, a *models.Alert) (*models.Alert, bool, error) {
	matched, err := json.Marshal(a.MatchedRuleIDs)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal matched rules: %w", err)
	}

	// Atomic upsert-or-fetch keyed by processed event: the unique
	// constraint on processed_event_id makes "exactly one alert per
	// event" hold under concurrent synthesis attempts.
	query := `
		INSERT INTO alerts (id, processed_event_id, classification, composite_risk_score, status, matched_rule_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (processed_event_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		a.ID, a.ProcessedEventID, a.Classification, a.CompositeRiskScore, a.Status, matched, a.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create alert: %w", err)
	}

	stored, err := r.GetAlertByEvent(ctx, a.ProcessedEventID)
	if err != nil {
		return nil, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	return r.getAlert(ctx, "id", id)
}

func (r *PostgresRepository) GetAlertByEvent(ctx context.Context, processedEventID string) (*models.Alert, error) {
	return r.getAlert(ctx, "processed_event_id", processedEventID)
}

func (r *PostgresRepository) getAlert(ctx context.Context, column, value string) (*models.Alert, error) {
	query := fmt.Sprintf(`
		SELECT id, processed_event_id, classification, composite_risk_score, status, matched_rule_ids, created_at
		FROM alerts
		WHERE %s = $1
	`, column)

	a := &models.Alert{}
	var matched []byte
	err := r.pool.QueryRow(ctx, query, value).Scan(
		&a.ID, &a.ProcessedEventID, &a.Classification, &a.CompositeRiskScore, &a.Status, &matched, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	if err := json.Unmarshal(matched, &a.MatchedRuleIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal matched rules: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) ListAlerts(ctx context.Context, status string) ([]*models.Alert, error) {
	query := `
		SELECT id, processed_event_id, classification, composite_risk_score, status, matched_rule_ids, created_at
		FROM alerts
	`
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		a := &models.Alert{}
		var matched []byte
		if err := rows.Scan(&a.ID, &a.ProcessedEventID, &a.Classification, &a.CompositeRiskScore, &a.Status, &matched, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if err := json.Unmarshal(matched, &a.MatchedRuleIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal matched rules: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateAlertStatus(ctx context.Context, alertID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE alerts SET status = $1 WHERE id = $2`, status, alertID)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateExplanationIfAbsent(ctx context.Context, e *models.Explanation) (*models.Explanation, bool, error) {
	tree, err := json.Marshal(e.Tree)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal evidence tree: %w", err)
	}
	counterfactuals, err := json.Marshal(e.Counterfactuals)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal counterfactuals: %w", err)
	}

	query := `
		INSERT INTO explanations (id, alert_id, natural_language, tree, counterfactuals, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (alert_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		e.ID, e.AlertID, e.NaturalLanguage, tree, counterfactuals, e.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create explanation: %w", err)
	}

	stored, err := r.GetExplanationByAlert(ctx, e.AlertID)
	if err != nil {
		return nil, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) GetExplanationByAlert(ctx context.Context, alertID string) (*models.Explanation, error) {
	query := `
		SELECT id, alert_id, natural_language, tree, counterfactuals, created_at
		FROM explanations
		WHERE alert_id = $1
	`
	e := &models.Explanation{}
	var tree, counterfactuals []byte
	err := r.pool.QueryRow(ctx, query, alertID).Scan(
		&e.ID, &e.AlertID, &e.NaturalLanguage, &tree, &counterfactuals, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExplanationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get explanation: %w", err)
	}
	if err := json.Unmarshal(tree, &e.Tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence tree: %w", err)
	}
	if err := json.Unmarshal(counterfactuals, &e.Counterfactuals); err != nil {
		return nil, fmt.Errorf("failed to unmarshal counterfactuals: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) AppendDecision(ctx context.Context, d *models.Decision, entry *models.AuditEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize appends per alert so decision timestamps are
	// non-decreasing within one alert's history.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, d.AlertID); err != nil {
		return fmt.Errorf("failed to acquire alert lock: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM alerts WHERE id = $1)`, d.AlertID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check alert: %w", err)
	}
	if !exists {
		return ErrAlertNotFound
	}

	// The timestamp is read before the lock is taken, so a decision that
	// lost the race may carry a time behind the alert's history. Never let
	// it run backwards within one alert.
	var last *time.Time
	if err := tx.QueryRow(ctx,
		`SELECT max(decision_timestamp) FROM decisions WHERE alert_id = $1`,
		d.AlertID).Scan(&last); err != nil {
		return fmt.Errorf("failed to read decision history: %w", err)
	}
	if last != nil && d.DecisionTimestamp.Before(*last) {
		d.DecisionTimestamp = *last
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO decisions (id, alert_id, analyst_id, action, reasoning, confidence, decision_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.AlertID, d.AnalystID, d.Action, d.Reasoning, d.Confidence, d.DecisionTimestamp); err != nil {
		return mapImmutability(err, "decision", d.ID, "failed to create decision")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, resource, resource_id, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.Timestamp, entry.ActorID, entry.Action, entry.Resource, entry.ResourceID, entry.Signature); err != nil {
		return mapImmutability(err, "audit entry", entry.ID, "failed to create audit entry")
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) GetDecisionByID(ctx context.Context, id string) (*models.Decision, error) {
	query := `
		SELECT id, alert_id, analyst_id, action, reasoning, confidence, decision_timestamp
		FROM decisions
		WHERE id = $1
	`
	d := &models.Decision{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.AlertID, &d.AnalystID, &d.Action, &d.Reasoning, &d.Confidence, &d.DecisionTimestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDecisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) ListDecisionsForAlert(ctx context.Context, alertID string) ([]*models.Decision, error) {
	return r.listDecisions(ctx, "alert_id", alertID)
}

func (r *PostgresRepository) ListDecisionsByAnalyst(ctx context.Context, analystID string) ([]*models.Decision, error) {
	return r.listDecisions(ctx, "analyst_id", analystID)
}

func (r *PostgresRepository) listDecisions(ctx context.Context, column, value string) ([]*models.Decision, error) {
	query := fmt.Sprintf(`
		SELECT id, alert_id, analyst_id, action, reasoning, confidence, decision_timestamp
		FROM decisions
		WHERE %s = $1
		ORDER BY decision_timestamp, id
	`, column)

	rows, err := r.pool.Query(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var out []*models.Decision
	for rows.Next() {
		d := &models.Decision{}
		if err := rows.Scan(&d.ID, &d.AlertID, &d.AnalystID, &d.Action, &d.Reasoning, &d.Confidence, &d.DecisionTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) DecisionStats(ctx context.Context, analystID string) (*models.DecisionStats, error) {
	query := `
		SELECT action, COUNT(*), COALESCE(AVG(confidence), 0)
		FROM decisions
	`
	args := []interface{}{}
	if analystID != "" {
		query += " WHERE analyst_id = $1"
		args = append(args, analystID)
	}
	query += " GROUP BY action"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate decisions: %w", err)
	}
	defer rows.Close()

	stats := &models.DecisionStats{
		AnalystID: analystID,
		ByAction:  make(map[string]int),
	}
	var weightedConfidence float64
	for rows.Next() {
		var action string
		var count int
		var avg float64
		if err := rows.Scan(&action, &count, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan decision stats: %w", err)
		}
		stats.ByAction[action] = count
		stats.TotalDecisions += count
		weightedConfidence += avg * float64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.TotalDecisions > 0 {
		stats.AvgConfidence = weightedConfidence / float64(stats.TotalDecisions)
	}
	return stats, nil
}

func (r *PostgresRepository) ListAuditEntries(ctx context.Context, resourceID string) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, timestamp, actor_id, action, resource, resource_id, signature
		FROM audit_log
	`
	args := []interface{}{}
	if resourceID != "" {
		query += " WHERE resource_id = $1"
		args = append(args, resourceID)
	}
	query += " ORDER BY timestamp"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditEntry
	for rows.Next() {
		e := &models.AuditEntry{}
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorID, &e.Action, &e.Resource, &e.ResourceID, &e.Signature); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// forbidMutationSQLState is raised by the forbid_mutation trigger
// installed on decisions and audit_log.
const forbidMutationSQLState = "P0001"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func mapImmutability(err error, resource, id, context string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == forbidMutationSQLState {
		return &fault.ImmutabilityViolation{Resource: resource, ID: id}
	}
	return fmt.Errorf("%s: %w", context, err)
}
