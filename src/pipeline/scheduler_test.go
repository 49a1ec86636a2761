package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/tick-analytics/src/alerts"
	"github.com/jiaming2012/tick-analytics/src/analytics"
	"github.com/jiaming2012/tick-analytics/src/models"
	"github.com/jiaming2012/tick-analytics/src/persistence"
)

func TestScheduler(t *testing.T) {
	var ok, failing atomic.Int32

	s := NewScheduler()
	s.Add("ok", 5*time.Millisecond, func(ctx context.Context) error {
		ok.Add(1)
		return nil
	})
	s.Add("failing", 5*time.Millisecond, func(ctx context.Context) error {
		failing.Add(1)
		return fmt.Errorf("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx))
	assert.GreaterOrEqual(t, ok.Load(), int32(2))
	assert.GreaterOrEqual(t, failing.Load(), int32(2))
}

func TestRegisterJobs(t *testing.T) {
	ctx := context.Background()
	now := t0.AddDate(0, 0, 10)

	store := persistence.NewMemoryStore()
	require.NoError(t, store.AppendWindows(ctx, []models.Window{
		{Symbol: "AAA", WindowStart: t0, WindowEnd: t0.Add(5 * time.Second), VWAP: 1, Low: 1, High: 1, Volume: 1, TickCount: 1},
		{Symbol: "AAA", WindowStart: now.Add(-5 * time.Second), WindowEnd: now, VWAP: 2, Low: 2, High: 2, Volume: 1, TickCount: 1},
	}))

	evaluator := alerts.NewEvaluator(alerts.NewMemoryRuleStore(), alerts.EvaluatorConfig{})
	engine := analytics.NewEngine(analytics.DefaultConfig())

	t.Run("without store", func(t *testing.T) {
		s := NewScheduler()
		RegisterJobs(s, SchedulerConfig{}, engine, evaluator, nil, nil)

		var names []string
		for _, job := range s.Jobs() {
			names = append(names, job.Name)
		}
		assert.Equal(t, []string{"rule-refresh", "stationarity", "volatility-refit"}, names)
	})

	t.Run("retention prunes old rows", func(t *testing.T) {
		s := NewScheduler()
		RegisterJobs(s, SchedulerConfig{RetentionDays: 7}, engine, evaluator, store, func() time.Time { return now })

		jobs := s.Jobs()
		require.Len(t, jobs, 4)

		retention := jobs[3]
		assert.Equal(t, "retention", retention.Name)
		assert.Equal(t, time.Hour, retention.Every)

		for _, job := range jobs {
			require.NoError(t, job.Run(ctx), job.Name)
		}

		windows, err := store.QueryWindows(ctx, "AAA", t0, now)
		require.NoError(t, err)
		require.Len(t, windows, 1)
		assert.Equal(t, now, windows[0].WindowEnd)
	})
}

func TestSchedulerConfigDefaults(t *testing.T) {
	cfg := SchedulerConfig{Stationarity: time.Second}.WithDefaults()
	assert.Equal(t, time.Second, cfg.Stationarity)
	assert.Equal(t, 5*time.Second, cfg.RuleRefresh)
	assert.Equal(t, 7, cfg.RetentionDays)
}
