package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/tick-analytics/src/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func snapshot(symbol string, i int, z *float64) *models.MetricsSnapshot {
	return &models.MetricsSnapshot{
		Symbol:    symbol,
		Timestamp: t0.Add(time.Duration(i) * 5 * time.Second),
		Price:     100,
		ZScore:    z,
	}
}

func newService(t *testing.T) (*Service, *Evaluator) {
	store := NewMemoryRuleStore()
	evaluator := NewEvaluator(store, EvaluatorConfig{
		Now: func() time.Time { return t0 },
	})
	require.NoError(t, evaluator.Refresh(context.Background()))
	return NewService(store, evaluator), evaluator
}

func zscoreRule(t *testing.T, svc *Service) *models.AlertRule {
	rule, err := svc.CreateRule(context.Background(), &models.AlertRuleRequest{
		Symbol:    "btcusdt",
		Metric:    "zscore",
		Condition: models.ConditionGreaterThan,
		Threshold: 2.0,
	})
	require.NoError(t, err)
	return rule
}

func TestEvaluator_FiresOncePerWindow(t *testing.T) {
	svc, evaluator := newService(t)
	rule := zscoreRule(t, svc)
	assert.Equal(t, "BTCUSDT", rule.Symbol)

	snap := snapshot("BTCUSDT", 1, models.Float(2.15))
	triggers := evaluator.Evaluate(snap)
	require.Len(t, triggers, 1)

	trigger := triggers[0]
	assert.Equal(t, rule.ID, trigger.RuleID)
	assert.Equal(t, snap.Timestamp, trigger.WindowTimestamp)
	assert.Equal(t, 2.15, trigger.ObservedValue)
	assert.Equal(t, 2.0, trigger.Threshold)
	assert.Equal(t, t0, trigger.FiredAt)

	t.Run("re-evaluation does not duplicate", func(t *testing.T) {
		assert.Empty(t, evaluator.Evaluate(snap))
		assert.Empty(t, evaluator.Evaluate(snapshot("BTCUSDT", 1, models.Float(2.5))))
	})

	t.Run("next window fires again", func(t *testing.T) {
		require.Len(t, evaluator.Evaluate(snapshot("BTCUSDT", 2, models.Float(2.2))), 1)
		assert.Equal(t, 2, evaluator.TriggeredCount(rule.ID))
	})

	t.Run("other symbols ignored", func(t *testing.T) {
		assert.Empty(t, evaluator.Evaluate(snapshot("ETHUSDT", 3, models.Float(9))))
	})
}

func TestEvaluator_ReplayBehindDedupHorizon(t *testing.T) {
	store := NewMemoryRuleStore()
	evaluator := NewEvaluator(store, EvaluatorConfig{
		DedupRetention: time.Minute,
		Now:            func() time.Time { return t0 },
	})
	svc := NewService(store, evaluator)
	rule := zscoreRule(t, svc)

	old := snapshot("BTCUSDT", 1, models.Float(2.5))
	require.Len(t, evaluator.Evaluate(old), 1)

	// an hour later the key for the old window has been pruned
	require.Len(t, evaluator.Evaluate(snapshot("BTCUSDT", 720, models.Float(2.5))), 1)

	assert.Empty(t, evaluator.Evaluate(old))
	assert.Empty(t, evaluator.Evaluate(snapshot("BTCUSDT", 2, models.Float(3))))
	assert.Equal(t, 2, evaluator.TriggeredCount(rule.ID))

	t.Run("windows inside the horizon still fire", func(t *testing.T) {
		require.Len(t, evaluator.Evaluate(snapshot("BTCUSDT", 715, models.Float(2.5))), 1)
	})
}

func TestEvaluator_NullMetricDoesNotQualify(t *testing.T) {
	svc, evaluator := newService(t)
	zscoreRule(t, svc)

	assert.Empty(t, evaluator.Evaluate(snapshot("BTCUSDT", 1, nil)))
	assert.Empty(t, evaluator.Evaluate(snapshot("BTCUSDT", 2, models.Float(1.99))))
}

func TestEvaluator_DisableKeepsHistory(t *testing.T) {
	ctx := context.Background()
	svc, evaluator := newService(t)
	rule := zscoreRule(t, svc)

	require.Len(t, evaluator.Evaluate(snapshot("BTCUSDT", 1, models.Float(2.15))), 1)

	_, err := svc.SetEnabled(ctx, rule.ID, false)
	require.NoError(t, err)

	assert.Empty(t, evaluator.Evaluate(snapshot("BTCUSDT", 2, models.Float(3))))

	history := svc.History(0)
	require.Equal(t, 1, history.Count)
	assert.Equal(t, rule.ID, history.Alerts[0].RuleID)

	views, err := svc.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.False(t, views[0].Enabled)
	assert.Equal(t, 1, views[0].TriggeredCount)

	t.Run("re-enable applies to the next snapshot", func(t *testing.T) {
		_, err := svc.SetEnabled(ctx, rule.ID, true)
		require.NoError(t, err)
		assert.Len(t, evaluator.Evaluate(snapshot("BTCUSDT", 3, models.Float(3))), 1)
	})
}

func TestEvaluator_HistoryBounded(t *testing.T) {
	store := NewMemoryRuleStore()
	evaluator := NewEvaluator(store, EvaluatorConfig{HistorySize: 5})
	svc := NewService(store, evaluator)
	zscoreRule(t, svc)

	for i := 0; i < 12; i++ {
		evaluator.Evaluate(snapshot("BTCUSDT", i, models.Float(3)))
	}

	history := evaluator.History(0)
	assert.Equal(t, 5, history.Count)
	assert.Equal(t, snapshot("BTCUSDT", 11, nil).Timestamp, history.Alerts[0].WindowTimestamp)

	assert.Len(t, evaluator.History(2).Alerts, 2)
}

func TestEvaluator_DedupRetention(t *testing.T) {
	store := NewMemoryRuleStore()
	evaluator := NewEvaluator(store, EvaluatorConfig{DedupRetention: time.Minute})
	svc := NewService(store, evaluator)
	zscoreRule(t, svc)

	for i := 0; i < 100; i++ {
		evaluator.Evaluate(snapshot("BTCUSDT", i, models.Float(3)))
	}

	evaluator.mu.Lock()
	defer evaluator.mu.Unlock()
	assert.LessOrEqual(t, len(evaluator.fired), 13)
}

func TestService_RuleCrud(t *testing.T) {
	ctx := context.Background()
	svc, evaluator := newService(t)
	rule := zscoreRule(t, svc)
	assert.Equal(t, 1, evaluator.ActiveRules())

	updated, err := svc.UpdateRule(ctx, rule.ID, &models.AlertRuleRequest{
		Symbol:    "ETHUSDT",
		Metric:    "rsi",
		Condition: models.ConditionLessThan,
		Threshold: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, rule.CreatedAt, updated.CreatedAt)
	assert.Equal(t, models.MetricRSI, updated.Metric)

	view, err := svc.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", view.Symbol)

	_, err = svc.CreateRule(ctx, &models.AlertRuleRequest{Symbol: "BTCUSDT", Metric: "nope", Condition: ">", Threshold: 1})
	assert.True(t, errors.Is(err, models.InvalidRuleErr))

	require.NoError(t, svc.DeleteRule(ctx, rule.ID))
	assert.Equal(t, 0, evaluator.ActiveRules())

	_, err = svc.GetRule(ctx, rule.ID)
	assert.True(t, errors.Is(err, models.RuleNotFoundErr))

	err = svc.DeleteRule(ctx, uuid.New())
	assert.True(t, errors.Is(err, models.RuleNotFoundErr))
}
