package rules

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/veridian-systems/veridian/internal/fault"
	"github.com/veridian-systems/veridian/internal/models"
)

// rulePack is the on-disk YAML shape for operator-authored rules.
type rulePack struct {
	Rules []packRule `yaml:"rules"`
}

type packRule struct {
	RuleID     string                 `yaml:"rule_id"`
	Name       string                 `yaml:"name"`
	Category   string                 `yaml:"category"`
	Conditions map[string]interface{} `yaml:"conditions"`
	Severity   string                 `yaml:"severity"`
	Enabled    *bool                  `yaml:"enabled"`
}

// LoadPack reads a YAML rule pack and returns validated rules. Every rule
// is compiled here so category/condition mismatches surface at load time
// rather than during evaluation.
func LoadPack(path string) ([]*models.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule pack: %w", err)
	}

	var pack rulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse rule pack: %w", err)
	}

	now := time.Now().UTC()
	out := make([]*models.Rule, 0, len(pack.Rules))
	for _, pr := range pack.Rules {
		if pr.RuleID == "" {
			return nil, fault.Validation("rule_id", "must not be empty")
		}
		if !models.IsValidSeverity(pr.Severity) {
			return nil, fault.Validation("severity",
				fmt.Sprintf("unknown severity %q in rule %s", pr.Severity, pr.RuleID))
		}

		enabled := true
		if pr.Enabled != nil {
			enabled = *pr.Enabled
		}

		rule := &models.Rule{
			ID:         uuid.New().String(),
			RuleID:     pr.RuleID,
			Name:       pr.Name,
			Category:   pr.Category,
			Conditions: pr.Conditions,
			Severity:   pr.Severity,
			Enabled:    enabled,
			CreatedAt:  now,
		}

		if _, err := Compile(rule); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}

	return out, nil
}
