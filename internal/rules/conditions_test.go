package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridian-systems/veridian/internal/fault"
	"github.com/veridian-systems/veridian/internal/models"
)

func testEvent() *models.ProcessedEvent {
	return &models.ProcessedEvent{
		ID:        "evt-1",
		EventType: "connection",
		SourceIP:  "185.220.101.50",
		DestIP:    "192.168.1.10",
		DestPort:  4444,
		Protocol:  "TCP",
		Timestamp: time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC),
	}
}

func TestCompile_Pattern(t *testing.T) {
	tests := []struct {
		name       string
		conditions map[string]interface{}
		destPort   int
		want       bool
	}{
		{
			name:       "exact port match",
			conditions: map[string]interface{}{"dest_port": 4444},
			destPort:   4444,
			want:       true,
		},
		{
			name:       "port mismatch",
			conditions: map[string]interface{}{"dest_port": 4444},
			destPort:   80,
			want:       false,
		},
		{
			name:       "json-decoded float condition matches int attribute",
			conditions: map[string]interface{}{"dest_port": float64(4444)},
			destPort:   4444,
			want:       true,
		},
		{
			name:       "multiple fields all must match",
			conditions: map[string]interface{}{"dest_port": 4444, "protocol": "UDP"},
			destPort:   4444,
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := Compile(&models.Rule{
				RuleID:     "R-1",
				Category:   models.CategoryPattern,
				Conditions: tt.conditions,
			})
			require.NoError(t, err)

			event := testEvent()
			event.DestPort = tt.destPort
			assert.Equal(t, tt.want, cond.Matches(event))
		})
	}
}

func TestCompile_Range(t *testing.T) {
	tests := []struct {
		name       string
		conditions map[string]interface{}
		destPort   int
		want       bool
	}{
		{
			name:       "within closed bounds",
			conditions: map[string]interface{}{"min_port": 8000, "max_port": 9000},
			destPort:   8888,
			want:       true,
		},
		{
			name:       "below min",
			conditions: map[string]interface{}{"min_port": 8000, "max_port": 9000},
			destPort:   443,
			want:       false,
		},
		{
			name:       "open upper bound",
			conditions: map[string]interface{}{"min_port": 8000},
			destPort:   65000,
			want:       true,
		},
		{
			name:       "open lower bound",
			conditions: map[string]interface{}{"max_port": 1024},
			destPort:   22,
			want:       true,
		},
		{
			name:       "boundary value matches",
			conditions: map[string]interface{}{"min_port": 8000},
			destPort:   8000,
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := Compile(&models.Rule{
				RuleID:     "R-2",
				Category:   models.CategoryRange,
				Conditions: tt.conditions,
			})
			require.NoError(t, err)

			event := testEvent()
			event.DestPort = tt.destPort
			assert.Equal(t, tt.want, cond.Matches(event))
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		rule *models.Rule
	}{
		{
			name: "unsupported category",
			rule: &models.Rule{
				RuleID:     "R-BAD",
				Category:   "statistical",
				Conditions: map[string]interface{}{"dest_port": 4444},
			},
		},
		{
			name: "empty condition map",
			rule: &models.Rule{
				RuleID:     "R-BAD",
				Category:   models.CategoryPattern,
				Conditions: map[string]interface{}{},
			},
		},
		{
			name: "unknown pattern field",
			rule: &models.Rule{
				RuleID:     "R-BAD",
				Category:   models.CategoryPattern,
				Conditions: map[string]interface{}{"username": "root"},
			},
		},
		{
			name: "range key without prefix",
			rule: &models.Rule{
				RuleID:     "R-BAD",
				Category:   models.CategoryRange,
				Conditions: map[string]interface{}{"port": 8000},
			},
		},
		{
			name: "range bounds inverted",
			rule: &models.Rule{
				RuleID:     "R-BAD",
				Category:   models.CategoryRange,
				Conditions: map[string]interface{}{"min_port": 9000, "max_port": 8000},
			},
		},
		{
			name: "range spans multiple fields",
			rule: &models.Rule{
				RuleID:     "R-BAD",
				Category:   models.CategoryRange,
				Conditions: map[string]interface{}{"min_port": 8000, "max_bytes": 100},
			},
		},
		{
			name: "non-numeric range bound",
			rule: &models.Rule{
				RuleID:     "R-BAD",
				Category:   models.CategoryRange,
				Conditions: map[string]interface{}{"min_port": "eight thousand"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.rule)
			require.Error(t, err)
			assert.True(t, fault.IsConfiguration(err), "expected ConfigurationError, got %v", err)
		})
	}
}

func TestConditionMatchesDoesNotMutateEvent(t *testing.T) {
	cond, err := Compile(&models.Rule{
		RuleID:     "R-3",
		Category:   models.CategoryPattern,
		Conditions: map[string]interface{}{"dest_port": 4444},
	})
	require.NoError(t, err)

	event := testEvent()
	before := *event
	cond.Matches(event)
	assert.Equal(t, before, *event)
}
