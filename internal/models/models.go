package models

import "time"

// Severity levels for rules and alerts.
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// Alert statuses. PENDING is the initial state; the decision workflow is
// the only writer allowed to advance it.
const (
	AlertStatusPending   = "PENDING"
	AlertStatusConfirmed = "CONFIRMED"
	AlertStatusDismissed = "DISMISSED"
	AlertStatusEscalated = "ESCALATED"
)

// Analyst decision actions.
const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionEscalate = "escalate"
)

// Rule categories.
const (
	CategoryPattern = "pattern"
	CategoryRange   = "range"
)

// ProcessedEvent is the canonical, hashed form of a raw security event.
// It is produced by the upstream processing service and consumed
// read-only by every reasoning component.
type ProcessedEvent struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"` // originating raw event
	EventType   string    `json:"event_type"`
	SourceIP    string    `json:"source_ip"`
	DestIP      string    `json:"dest_ip"`
	DestPort    int       `json:"dest_port"`
	Protocol    string    `json:"protocol"`
	Timestamp   time.Time `json:"timestamp"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// RawEvent is the unprocessed event as ingested, carried through only so
// explanations can reference original payload attributes.
type RawEvent struct {
	ID        string                 `json:"id"`
	EventType string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	RawData   map[string]interface{} `json:"raw_data"`
}

// NeuralDetection is the anomaly model's verdict for one processed event.
// Immutable after creation.
type NeuralDetection struct {
	ID               string             `json:"id"`
	ProcessedEventID string             `json:"processed_event_id"`
	AnomalyScore     float64            `json:"anomaly_score"` // [0,1]
	Factors          map[string]float64 `json:"factors,omitempty"`
	ModelVersion     string             `json:"model_version"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Rule is an operator-authored declarative detection. Conditions is a
// flat key/value map interpreted according to Category; it must
// round-trip unchanged between rule authoring and evaluation.
type Rule struct {
	ID         string                 `json:"id"`
	RuleID     string                 `json:"rule_id"` // stable operator-facing identifier
	Name       string                 `json:"name"`
	Category   string                 `json:"category"`
	Conditions map[string]interface{} `json:"conditions"`
	Severity   string                 `json:"severity"`
	Enabled    bool                   `json:"enabled"`
	CreatedAt  time.Time              `json:"created_at"`
}

// RuleEvaluation records the outcome of evaluating one enabled rule
// against one processed event. Created once, never mutated.
type RuleEvaluation struct {
	ID               string    `json:"id"`
	ProcessedEventID string    `json:"processed_event_id"`
	RuleID           string    `json:"rule_id"`
	RuleSeverity     string    `json:"rule_severity"`
	Matched          bool      `json:"matched"`
	Confidence       float64   `json:"confidence"`
	CreatedAt        time.Time `json:"created_at"`
}

// Alert is the consolidated finding for one processed event. At most one
// alert exists per processed event. Classification and risk score are
// fixed at creation; Status is the only field later layers may advance.
type Alert struct {
	ID                 string    `json:"id"`
	ProcessedEventID   string    `json:"processed_event_id"`
	Classification     string    `json:"classification"`       // severity label
	CompositeRiskScore float64   `json:"composite_risk_score"` // [0,100]
	Status             string    `json:"status"`
	MatchedRuleIDs     []string  `json:"matched_rule_ids"`
	CreatedAt          time.Time `json:"created_at"`
}

// EvidenceNode is one node of an explanation's evidence tree.
type EvidenceNode struct {
	Label    string         `json:"label"`
	Kind     string         `json:"kind"` // "summary", "rule_match", "anomaly_factor"
	Detail   string         `json:"detail,omitempty"`
	Weight   float64        `json:"weight,omitempty"`
	Children []EvidenceNode `json:"children,omitempty"`
}

// Explanation is the traceable reasoning artifact for one alert. At most
// one exists per alert; it never mutates the records it explains.
type Explanation struct {
	ID              string       `json:"id"`
	AlertID         string       `json:"alert_id"`
	NaturalLanguage string       `json:"natural_language"`
	Tree            EvidenceNode `json:"tree"`
	Counterfactuals []string     `json:"counterfactuals"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Decision is one analyst verdict on an alert. Every field is write-once:
// the ledger offers no mutation path and storage enforces append-only.
type Decision struct {
	ID                string    `json:"id"`
	AlertID           string    `json:"alert_id"`
	AnalystID         string    `json:"analyst_id"`
	Action            string    `json:"action"`
	Reasoning         string    `json:"reasoning"`
	Confidence        float64   `json:"confidence"` // [0,1]
	DecisionTimestamp time.Time `json:"decision_timestamp"`
}

// AuditEntry records a ledger-affecting action. Append-only, never edited
// or pruned.
type AuditEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"` // "create"
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id"`
	Signature  string    `json:"signature"` // HMAC for tamper detection
}

// Audit actions and resources.
const (
	AuditActionCreate = "create"

	AuditResourceDecision = "decision"
)

// DecisionStats aggregates an analyst's (or all analysts') decision
// history.
type DecisionStats struct {
	AnalystID      string         `json:"analyst_id,omitempty"`
	TotalDecisions int            `json:"total_decisions"`
	ByAction       map[string]int `json:"by_action"`
	AvgConfidence  float64        `json:"avg_confidence"`
}

// SeverityRank orders severities for dedup comparisons. Unknown
// severities rank below LOW so a malformed rule can never dominate.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// MaxSeverity returns the higher-ranked of two severity labels.
func MaxSeverity(a, b string) string {
	if SeverityRank(b) > SeverityRank(a) {
		return b
	}
	return a
}

// IsValidSeverity reports whether severity is one of the known labels.
func IsValidSeverity(severity string) bool {
	return SeverityRank(severity) > 0
}

// IsValidAction reports whether action is a recognized analyst action.
func IsValidAction(action string) bool {
	switch action {
	case ActionApprove, ActionReject, ActionEscalate:
		return true
	default:
		return false
	}
}
