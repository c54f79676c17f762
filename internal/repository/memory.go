package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/veridian-systems/veridian/internal/models"
)

// InMemoryRepository is a Repository backed by process memory. It stores
// and returns defensive copies so callers can never mutate a persisted
// write-once record through a retained pointer.
type InMemoryRepository struct {
	detections       map[string]*models.NeuralDetection // by processed event ID
	evaluations      map[string][]*models.RuleEvaluation
	rules            map[string]*models.Rule
	alerts           map[string]*models.Alert       // by alert ID
	alertsByEvent    map[string]string              // processed event ID -> alert ID
	explanations     map[string]*models.Explanation // by alert ID
	decisions        map[string]*models.Decision
	decisionsByAlert map[string][]string
	audit            []*models.AuditEntry
	mu               sync.RWMutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		detections:       make(map[string]*models.NeuralDetection),
		evaluations:      make(map[string][]*models.RuleEvaluation),
		rules:            make(map[string]*models.Rule),
		alerts:           make(map[string]*models.Alert),
		alertsByEvent:    make(map[string]string),
		explanations:     make(map[string]*models.Explanation),
		decisions:        make(map[string]*models.Decision),
		decisionsByAlert: make(map[string][]string),
	}
}

func (r *InMemoryRepository) CreateDetection(ctx context.Context, d *models.NeuralDetection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.detections[d.ProcessedEventID]; exists {
		return ErrDetectionExists
	}
	r.detections[d.ProcessedEventID] = copyDetection(d)
	return nil
}

func (r *InMemoryRepository) GetDetectionByEvent(ctx context.Context, processedEventID string) (*models.NeuralDetection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.detections[processedEventID]
	if !exists {
		return nil, ErrDetectionNotFound
	}
	return copyDetection(d), nil
}

func (r *InMemoryRepository) CreateEvaluations(ctx context.Context, evals []*models.RuleEvaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range evals {
		c := *e
		r.evaluations[e.ProcessedEventID] = append(r.evaluations[e.ProcessedEventID], &c)
	}
	return nil
}

func (r *InMemoryRepository) ListEvaluationsForEvent(ctx context.Context, processedEventID string) ([]*models.RuleEvaluation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	evals := r.evaluations[processedEventID]
	out := make([]*models.RuleEvaluation, 0, len(evals))
	for _, e := range evals {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (r *InMemoryRepository) CreateRule(ctx context.Context, rule *models.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rules[rule.RuleID]; exists {
		return ErrRuleExists
	}
	r.rules[rule.RuleID] = copyRule(rule)
	return nil
}

func (r *InMemoryRepository) ListEnabledRules(ctx context.Context) ([]*models.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Enabled {
			out = append(out, copyRule(rule))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out, nil
}

func (r *InMemoryRepository) CreateAlertIfAbsent(ctx context.Context, a *models.Alert) (*models.Alert, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, exists := r.alertsByEvent[a.ProcessedEventID]; exists {
		return copyAlert(r.alerts[existingID]), false, nil
	}
	stored := copyAlert(a)
	r.alerts[stored.ID] = stored
	r.alertsByEvent[stored.ProcessedEventID] = stored.ID
	return copyAlert(stored), true, nil
}

func (r *InMemoryRepository) GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, exists := r.alerts[id]
	if !exists {
		return nil, ErrAlertNotFound
	}
	return copyAlert(a), nil
}

func (r *InMemoryRepository) GetAlertByEvent(ctx context.Context, processedEventID string) (*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.alertsByEvent[processedEventID]
	if !exists {
		return nil, ErrAlertNotFound
	}
	return copyAlert(r.alerts[id]), nil
}

func (r *InMemoryRepository) ListAlerts(ctx context.Context, status string) ([]*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		if status == "" || a.Status == status {
			out = append(out, copyAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryRepository) UpdateAlertStatus(ctx context.Context, alertID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.alerts[alertID]
	if !exists {
		return ErrAlertNotFound
	}
	a.Status = status
	return nil
}

func (r *InMemoryRepository) CreateExplanationIfAbsent(ctx context.Context, e *models.Explanation) (*models.Explanation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.explanations[e.AlertID]; exists {
		return copyExplanation(existing), false, nil
	}
	stored := copyExplanation(e)
	r.explanations[stored.AlertID] = stored
	return copyExplanation(stored), true, nil
}

func (r *InMemoryRepository) GetExplanationByAlert(ctx context.Context, alertID string) (*models.Explanation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.explanations[alertID]
	if !exists {
		return nil, ErrExplanationNotFound
	}
	return copyExplanation(e), nil
}

func (r *InMemoryRepository) AppendDecision(ctx context.Context, d *models.Decision, entry *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.alerts[d.AlertID]; !exists {
		return ErrAlertNotFound
	}

	// Appends per alert are ordered under the lock; never let a new
	// decision's timestamp run behind the previous one.
	if ids := r.decisionsByAlert[d.AlertID]; len(ids) > 0 {
		last := r.decisions[ids[len(ids)-1]]
		if d.DecisionTimestamp.Before(last.DecisionTimestamp) {
			d.DecisionTimestamp = last.DecisionTimestamp
		}
	}

	stored := *d
	r.decisions[stored.ID] = &stored
	r.decisionsByAlert[stored.AlertID] = append(r.decisionsByAlert[stored.AlertID], stored.ID)

	e := *entry
	r.audit = append(r.audit, &e)
	return nil
}

func (r *InMemoryRepository) GetDecisionByID(ctx context.Context, id string) (*models.Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.decisions[id]
	if !exists {
		return nil, ErrDecisionNotFound
	}
	c := *d
	return &c, nil
}

func (r *InMemoryRepository) ListDecisionsForAlert(ctx context.Context, alertID string) ([]*models.Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.decisionsByAlert[alertID]
	out := make([]*models.Decision, 0, len(ids))
	for _, id := range ids {
		c := *r.decisions[id]
		out = append(out, &c)
	}
	return out, nil
}

func (r *InMemoryRepository) ListDecisionsByAnalyst(ctx context.Context, analystID string) ([]*models.Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Decision, 0)
	for _, d := range r.decisions {
		if d.AnalystID == analystID {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DecisionTimestamp.Before(out[j].DecisionTimestamp)
	})
	return out, nil
}

func (r *InMemoryRepository) DecisionStats(ctx context.Context, analystID string) (*models.DecisionStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &models.DecisionStats{
		AnalystID: analystID,
		ByAction:  make(map[string]int),
	}
	var confidenceSum float64
	for _, d := range r.decisions {
		if analystID != "" && d.AnalystID != analystID {
			continue
		}
		stats.TotalDecisions++
		stats.ByAction[d.Action]++
		confidenceSum += d.Confidence
	}
	if stats.TotalDecisions > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.TotalDecisions)
	}
	return stats, nil
}

func (r *InMemoryRepository) ListAuditEntries(ctx context.Context, resourceID string) ([]*models.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.AuditEntry, 0)
	for _, e := range r.audit {
		if resourceID == "" || e.ResourceID == resourceID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *InMemoryRepository) Close() error {
	return nil
}

func copyDetection(d *models.NeuralDetection) *models.NeuralDetection {
	c := *d
	if d.Factors != nil {
		c.Factors = make(map[string]float64, len(d.Factors))
		for k, v := range d.Factors {
			c.Factors[k] = v
		}
	}
	return &c
}

func copyRule(r *models.Rule) *models.Rule {
	c := *r
	if r.Conditions != nil {
		c.Conditions = make(map[string]interface{}, len(r.Conditions))
		for k, v := range r.Conditions {
			c.Conditions[k] = v
		}
	}
	return &c
}

func copyAlert(a *models.Alert) *models.Alert {
	c := *a
	c.MatchedRuleIDs = append([]string(nil), a.MatchedRuleIDs...)
	return &c
}

func copyExplanation(e *models.Explanation) *models.Explanation {
	c := *e
	c.Counterfactuals = append([]string(nil), e.Counterfactuals...)
	c.Tree = copyNode(e.Tree)
	return &c
}

func copyNode(n models.EvidenceNode) models.EvidenceNode {
	c := n
	if n.Children != nil {
		c.Children = make([]models.EvidenceNode, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = copyNode(child)
		}
	}
	return c
}
