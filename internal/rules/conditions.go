package rules

import (
	"fmt"
	"strings"

	"github.com/veridian-systems/veridian/internal/fault"
	"github.com/veridian-systems/veridian/internal/models"
)

// Condition is a compiled rule condition. Rules carry a flat key/value
// map whose interpretation depends on the rule category; ambiguity is
// resolved here at load time, not during evaluation.
type Condition interface {
	// Matches evaluates the condition against a processed event. It is
	// pure: no mutation of the event, no I/O.
	Matches(event *models.ProcessedEvent) bool
}

// PatternCondition matches when every declared field equals the
// corresponding event attribute.
type PatternCondition struct {
	fields map[string]interface{}
}

func (c *PatternCondition) Matches(event *models.ProcessedEvent) bool {
	for field, want := range c.fields {
		got, ok := eventAttribute(event, field)
		if !ok || !attributeEquals(got, want) {
			return false
		}
	}
	return true
}

// RangeCondition matches when a numeric event attribute lies within
// [Min, Max]. Either bound may be open.
type RangeCondition struct {
	field    string
	min, max float64
	hasMin   bool
	hasMax   bool
}

func (c *RangeCondition) Matches(event *models.ProcessedEvent) bool {
	got, ok := eventAttribute(event, c.field)
	if !ok {
		return false
	}
	value, ok := toFloat(got)
	if !ok {
		return false
	}
	if c.hasMin && value < c.min {
		return false
	}
	if c.hasMax && value > c.max {
		return false
	}
	return true
}

// Compile turns a rule's condition map into an executable Condition. An
// unsupported category or a condition map that does not fit the category
// is a ConfigurationError: such a rule should never have been activated,
// but the evaluator guards anyway.
func Compile(rule *models.Rule) (Condition, error) {
	if len(rule.Conditions) == 0 {
		return nil, fault.Configuration(rule.RuleID, "empty condition map")
	}

	switch rule.Category {
	case models.CategoryPattern:
		return compilePattern(rule)
	case models.CategoryRange:
		return compileRange(rule)
	default:
		return nil, fault.Configuration(rule.RuleID,
			fmt.Sprintf("unsupported category %q", rule.Category))
	}
}

func compilePattern(rule *models.Rule) (Condition, error) {
	fields := make(map[string]interface{}, len(rule.Conditions))
	for key, value := range rule.Conditions {
		if !knownAttribute(key) {
			return nil, fault.Configuration(rule.RuleID,
				fmt.Sprintf("unknown pattern field %q", key))
		}
		fields[key] = value
	}
	return &PatternCondition{fields: fields}, nil
}

func compileRange(rule *models.Rule) (Condition, error) {
	c := &RangeCondition{}
	for key, value := range rule.Conditions {
		var field string
		var isMin bool
		switch {
		case strings.HasPrefix(key, "min_"):
			field, isMin = strings.TrimPrefix(key, "min_"), true
		case strings.HasPrefix(key, "max_"):
			field = strings.TrimPrefix(key, "max_")
		default:
			return nil, fault.Configuration(rule.RuleID,
				fmt.Sprintf("range condition key %q must start with min_ or max_", key))
		}

		if c.field != "" && c.field != field {
			return nil, fault.Configuration(rule.RuleID,
				fmt.Sprintf("range condition spans multiple fields: %q and %q", c.field, field))
		}
		c.field = field

		bound, ok := toFloat(value)
		if !ok {
			return nil, fault.Configuration(rule.RuleID,
				fmt.Sprintf("range bound %q is not numeric", key))
		}
		if isMin {
			c.min, c.hasMin = bound, true
		} else {
			c.max, c.hasMax = bound, true
		}
	}

	if !knownAttribute(c.field) {
		return nil, fault.Configuration(rule.RuleID,
			fmt.Sprintf("unknown range field %q", c.field))
	}
	if c.hasMin && c.hasMax && c.min > c.max {
		return nil, fault.Configuration(rule.RuleID,
			fmt.Sprintf("range bounds inverted: min %v > max %v", c.min, c.max))
	}
	return c, nil
}

// eventAttribute resolves a condition field name to the event's value.
// "port" is accepted as shorthand for "dest_port" since operator-authored
// range rules use min_port/max_port.
func eventAttribute(event *models.ProcessedEvent, field string) (interface{}, bool) {
	switch field {
	case "dest_port", "port":
		return event.DestPort, true
	case "source_ip":
		return event.SourceIP, true
	case "dest_ip":
		return event.DestIP, true
	case "protocol":
		return event.Protocol, true
	case "event_type":
		return event.EventType, true
	default:
		return nil, false
	}
}

func knownAttribute(field string) bool {
	_, ok := eventAttribute(&models.ProcessedEvent{}, field)
	return ok
}

func attributeEquals(got, want interface{}) bool {
	// Numeric condition values arrive as float64 from JSON and as int
	// from Go callers; compare numerically when both sides are numbers.
	gf, gok := toFloat(got)
	wf, wok := toFloat(want)
	if gok && wok {
		return gf == wf
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
