package logging

import "log/slog"

// Common field names for consistent logging across the reasoning
// pipeline.
const (
	FieldService    = "service"
	FieldEventID    = "event_id"
	FieldAlertID    = "alert_id"
	FieldRuleID     = "rule_id"
	FieldAnalystID  = "analyst_id"
	FieldDecisionID = "decision_id"
	FieldScore      = "anomaly_score"
	FieldRisk       = "risk_score"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// EventID returns a slog attribute for a processed event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// AlertID returns a slog attribute for an alert ID.
func AlertID(id string) slog.Attr {
	return slog.String(FieldAlertID, id)
}

// RuleID returns a slog attribute for a rule ID.
func RuleID(id string) slog.Attr {
	return slog.String(FieldRuleID, id)
}

// AnalystID returns a slog attribute for an analyst ID.
func AnalystID(id string) slog.Attr {
	return slog.String(FieldAnalystID, id)
}

// DecisionID returns a slog attribute for a decision ID.
func DecisionID(id string) slog.Attr {
	return slog.String(FieldDecisionID, id)
}

// Score returns a slog attribute for an anomaly score.
func Score(score float64) slog.Attr {
	return slog.Float64(FieldScore, score)
}

// Risk returns a slog attribute for a composite risk score.
func Risk(risk float64) slog.Attr {
	return slog.Float64(FieldRisk, risk)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
