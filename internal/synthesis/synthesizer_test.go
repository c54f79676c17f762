package synthesis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridian-systems/veridian/internal/config"
	"github.com/veridian-systems/veridian/internal/fault"
	"github.com/veridian-systems/veridian/internal/models"
	"github.com/veridian-systems/veridian/internal/repository"
)

func testPolicy() config.ReasoningConfig {
	return config.ReasoningConfig{
		HighAnomalyThreshold: 0.85,
		AnomalyWeight:        0.55,
		RuleWeight:           0.45,
		ActivityWindow:       24 * time.Hour,
		Workers:              1,
	}
}

func newSynthesizer(t *testing.T) (*Synthesizer, *repository.InMemoryRepository) {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	s, err := NewSynthesizer(repo, testPolicy())
	require.NoError(t, err)
	return s, repo
}

func event(id string) *models.ProcessedEvent {
	return &models.ProcessedEvent{
		ID:        id,
		SourceIP:  "10.0.0.1",
		DestIP:    "10.0.0.2",
		DestPort:  4444,
		Protocol:  "TCP",
		Timestamp: time.Now().UTC(),
	}
}

func detection(score float64) *models.NeuralDetection {
	return &models.NeuralDetection{
		ID:               "det-1",
		ProcessedEventID: "evt-1",
		AnomalyScore:     score,
		ModelVersion:     "heuristic-v1",
		CreatedAt:        time.Now().UTC(),
	}
}

func evaluation(ruleID, severity string, matched bool) *models.RuleEvaluation {
	return &models.RuleEvaluation{
		ID:               "eval-" + ruleID,
		ProcessedEventID: "evt-1",
		RuleID:           ruleID,
		RuleSeverity:     severity,
		Matched:          matched,
		Confidence:       1.0,
		CreatedAt:        time.Now().UTC(),
	}
}

func TestSynthesize_HighSeverityMatchCreatesAlert(t *testing.T) {
	s, _ := newSynthesizer(t)

	alert, err := s.Synthesize(context.Background(), event("evt-1"), detection(0.3),
		[]*models.RuleEvaluation{evaluation("R-4444", models.SeverityHigh, true)})
	require.NoError(t, err)
	require.NotNil(t, alert)

	assert.Equal(t, models.SeverityHigh, alert.Classification)
	assert.Equal(t, models.AlertStatusPending, alert.Status)
	assert.Equal(t, "evt-1", alert.ProcessedEventID)
	assert.Contains(t, alert.MatchedRuleIDs, "R-4444")
}

func TestSynthesize_NoMatchLowAnomalyCreatesNothing(t *testing.T) {
	s, repo := newSynthesizer(t)

	alert, err := s.Synthesize(context.Background(), event("evt-1"), detection(0.4),
		[]*models.RuleEvaluation{evaluation("R-MISS", models.SeverityHigh, false)})
	require.NoError(t, err)
	assert.Nil(t, alert)

	alerts, err := repo.ListAlerts(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestSynthesize_MediumMatchAloneIsNotEnough(t *testing.T) {
	s, _ := newSynthesizer(t)

	alert, err := s.Synthesize(context.Background(), event("evt-1"), detection(0.4),
		[]*models.RuleEvaluation{evaluation("R-MED", models.SeverityMedium, true)})
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestSynthesize_HighAnomalyAloneCreatesAlert(t *testing.T) {
	s, _ := newSynthesizer(t)

	alert, err := s.Synthesize(context.Background(), event("evt-1"), detection(0.95), nil)
	require.NoError(t, err)
	require.NotNil(t, alert)

	// Anomaly-only alerts have no matched severity to inherit.
	assert.Equal(t, models.SeverityMedium, alert.Classification)
	assert.Empty(t, alert.MatchedRuleIDs)
}

func TestSynthesize_MultipleMatchesDeduplicateToOneAlert(t *testing.T) {
	s, repo := newSynthesizer(t)

	evt := event("evt-1")
	evt.DestPort = 8888
	alert, err := s.Synthesize(context.Background(), evt, detection(0.3),
		[]*models.RuleEvaluation{
			evaluation("R-8888-PATTERN", models.SeverityHigh, true),
			evaluation("R-HIGH-RANGE", models.SeverityMedium, true),
		})
	require.NoError(t, err)
	require.NotNil(t, alert)

	assert.Equal(t, models.SeverityHigh, alert.Classification, "classification is the highest matched severity")
	assert.ElementsMatch(t, []string{"R-8888-PATTERN", "R-HIGH-RANGE"}, alert.MatchedRuleIDs)

	alerts, err := repo.ListAlerts(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestSynthesize_Idempotent(t *testing.T) {
	s, repo := newSynthesizer(t)

	evals := []*models.RuleEvaluation{evaluation("R-4444", models.SeverityHigh, true)}
	first, err := s.Synthesize(context.Background(), event("evt-1"), detection(0.3), evals)
	require.NoError(t, err)
	second, err := s.Synthesize(context.Background(), event("evt-1"), detection(0.3), evals)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "second synthesis returns the existing alert")

	alerts, err := repo.ListAlerts(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestSynthesize_ConcurrentCallsCreateOneAlert(t *testing.T) {
	s, repo := newSynthesizer(t)

	evals := []*models.RuleEvaluation{evaluation("R-4444", models.SeverityHigh, true)}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Synthesize(context.Background(), event("evt-1"), detection(0.3), evals)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	alerts, err := repo.ListAlerts(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestSynthesize_CreatesNoExplanationOrDecision(t *testing.T) {
	s, repo := newSynthesizer(t)

	alert, err := s.Synthesize(context.Background(), event("evt-1"), detection(0.3),
		[]*models.RuleEvaluation{evaluation("R-4444", models.SeverityHigh, true)})
	require.NoError(t, err)
	require.NotNil(t, alert)

	_, err = repo.GetExplanationByAlert(context.Background(), alert.ID)
	assert.ErrorIs(t, err, repository.ErrExplanationNotFound)

	decisions, err := repo.ListDecisionsForAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Empty(t, decisions)

	audit, err := repo.ListAuditEntries(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, audit)
}

func TestSynthesize_RejectsInvalidInputs(t *testing.T) {
	s, _ := newSynthesizer(t)

	_, err := s.Synthesize(context.Background(), nil, detection(0.5), nil)
	assert.True(t, fault.IsValidation(err))

	_, err = s.Synthesize(context.Background(), event("evt-1"), nil, nil)
	assert.True(t, fault.IsValidation(err))

	_, err = s.Synthesize(context.Background(), event("evt-1"), detection(1.5), nil)
	assert.True(t, fault.IsValidation(err))
}

func TestCompositeRisk_BoundsAndMonotonicity(t *testing.T) {
	s, _ := newSynthesizer(t)

	severities := []string{"", models.SeverityLow, models.SeverityMedium, models.SeverityHigh}
	scores := []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1}

	for _, severity := range severities {
		prev := -1.0
		for _, score := range scores {
			risk := s.CompositeRisk(score, severity)
			assert.GreaterOrEqual(t, risk, 0.0)
			assert.LessOrEqual(t, risk, 100.0)
			assert.GreaterOrEqual(t, risk, prev, "risk must not decrease as anomaly rises")
			prev = risk
		}
	}

	for _, score := range scores {
		prev := -1.0
		for _, severity := range severities {
			risk := s.CompositeRisk(score, severity)
			assert.GreaterOrEqual(t, risk, prev, "risk must not decrease as severity rises")
			prev = risk
		}
	}

	assert.Equal(t, 100.0, s.CompositeRisk(1, models.SeverityHigh))
	assert.Equal(t, 0.0, s.CompositeRisk(0, ""))
}

func TestNewSynthesizer_RejectsBadPolicy(t *testing.T) {
	repo := repository.NewInMemoryRepository()

	bad := testPolicy()
	bad.HighAnomalyThreshold = 1.5
	_, err := NewSynthesizer(repo, bad)
	require.Error(t, err)
	assert.True(t, fault.IsConfiguration(err))

	bad = testPolicy()
	bad.AnomalyWeight = 0
	_, err = NewSynthesizer(repo, bad)
	require.Error(t, err)
	assert.True(t, fault.IsConfiguration(err))
}
