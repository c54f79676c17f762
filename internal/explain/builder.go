// Package explain assembles the traceable reasoning artifact for an
// alert. Building an explanation is strictly additive: no upstream
// record is ever modified, and no decision or audit entry is written.
package explain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veridian-systems/veridian/internal/fault"
	"github.com/veridian-systems/veridian/internal/models"
	"github.com/veridian-systems/veridian/internal/repository"
)

// minSummaryLength guards against degenerate one-word summaries; an
// explanation an analyst cannot read is not an explanation.
const minSummaryLength = 20

// Builder produces at most one Explanation per alert.
type Builder struct {
	repo repository.Repository
}

func NewBuilder(repo repository.Repository) *Builder {
	return &Builder{repo: repo}
}

// Explain builds (or, if one already exists for the alert, returns) the
// alert's explanation. Re-invoking for the same alert yields the same
// stored record.
func (b *Builder) Explain(ctx context.Context, alert *models.Alert, detection *models.NeuralDetection, evaluations []*models.RuleEvaluation, event *models.ProcessedEvent, raw *models.RawEvent) (*models.Explanation, error) {
	if alert == nil || alert.ID == "" {
		return nil, fault.Validation("alert", "missing")
	}
	if detection == nil {
		return nil, fault.Validation("detection", "missing")
	}
	if event == nil {
		return nil, fault.Validation("processed_event", "missing")
	}

	summary := b.summarize(alert, detection, evaluations, event)
	if len(summary) < minSummaryLength {
		return nil, fault.Validation("natural_language",
			fmt.Sprintf("summary shorter than %d characters", minSummaryLength))
	}

	explanation := &models.Explanation{
		ID:              uuid.New().String(),
		AlertID:         alert.ID,
		NaturalLanguage: summary,
		Tree:            b.evidenceTree(alert, detection, evaluations),
		Counterfactuals: b.counterfactuals(alert, detection, evaluations, event),
		CreatedAt:       time.Now().UTC(),
	}

	stored, _, err := b.repo.CreateExplanationIfAbsent(ctx, explanation)
	if err != nil {
		return nil, fmt.Errorf("failed to persist explanation: %w", err)
	}
	return stored, nil
}

func (b *Builder) summarize(alert *models.Alert, detection *models.NeuralDetection, evaluations []*models.RuleEvaluation, event *models.ProcessedEvent) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Alert classified %s with composite risk %.1f/100 for %s traffic from %s to %s:%d.",
		alert.Classification, alert.CompositeRiskScore, event.Protocol,
		event.SourceIP, event.DestIP, event.DestPort)

	matched := matchedEvaluations(evaluations)
	if len(matched) > 0 {
		ids := make([]string, len(matched))
		for i, eval := range matched {
			ids[i] = fmt.Sprintf("%s (%s)", eval.RuleID, eval.RuleSeverity)
		}
		fmt.Fprintf(&sb, " Matched rules: %s.", strings.Join(ids, ", "))
	} else {
		sb.WriteString(" No declarative rule matched; the alert is driven by the anomaly model alone.")
	}

	fmt.Fprintf(&sb, " The anomaly model (%s) scored this event %.2f.",
		detection.ModelVersion, detection.AnomalyScore)

	return sb.String()
}

// evidenceTree roots the explanation at a summary node with one child per
// contributing signal: each matched rule and each anomaly factor.
func (b *Builder) evidenceTree(alert *models.Alert, detection *models.NeuralDetection, evaluations []*models.RuleEvaluation) models.EvidenceNode {
	root := models.EvidenceNode{
		Label:  fmt.Sprintf("%s alert, risk %.1f", alert.Classification, alert.CompositeRiskScore),
		Kind:   "summary",
		Weight: alert.CompositeRiskScore,
	}

	for _, eval := range matchedEvaluations(evaluations) {
		root.Children = append(root.Children, models.EvidenceNode{
			Label:  eval.RuleID,
			Kind:   "rule_match",
			Detail: fmt.Sprintf("%s severity rule matched with confidence %.2f", eval.RuleSeverity, eval.Confidence),
			Weight: eval.Confidence,
		})
	}

	anomaly := models.EvidenceNode{
		Label:  "anomaly_score",
		Kind:   "anomaly_factor",
		Detail: fmt.Sprintf("model %s", detection.ModelVersion),
		Weight: detection.AnomalyScore,
	}
	for _, factor := range sortedFactors(detection.Factors) {
		anomaly.Children = append(anomaly.Children, models.EvidenceNode{
			Label:  factor,
			Kind:   "anomaly_factor",
			Weight: detection.Factors[factor],
		})
	}
	root.Children = append(root.Children, anomaly)

	return root
}

// counterfactuals describe what would need to differ for the outcome to
// change. The list may be empty but is always present.
func (b *Builder) counterfactuals(alert *models.Alert, detection *models.NeuralDetection, evaluations []*models.RuleEvaluation, event *models.ProcessedEvent) []string {
	out := []string{}

	for _, eval := range matchedEvaluations(evaluations) {
		out = append(out, fmt.Sprintf(
			"If the event had not satisfied rule %s, its %s severity would not contribute to this alert.",
			eval.RuleID, eval.RuleSeverity))
	}

	if alert.Classification == models.SeverityHigh && len(matchedEvaluations(evaluations)) > 0 {
		out = append(out, fmt.Sprintf(
			"Without any HIGH severity rule match, traffic to port %d would only alert if the anomaly score exceeded the high-anomaly threshold.",
			event.DestPort))
	}

	if detection.AnomalyScore > 0 {
		out = append(out, fmt.Sprintf(
			"A lower anomaly score than %.2f would reduce the composite risk below %.1f.",
			detection.AnomalyScore, alert.CompositeRiskScore))
	}

	return out
}

func matchedEvaluations(evaluations []*models.RuleEvaluation) []*models.RuleEvaluation {
	out := make([]*models.RuleEvaluation, 0, len(evaluations))
	for _, eval := range evaluations {
		if eval.Matched {
			out = append(out, eval)
		}
	}
	return out
}

func sortedFactors(factors map[string]float64) []string {
	keys := make([]string, 0, len(factors))
	for k := range factors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
