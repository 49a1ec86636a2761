package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/tick-analytics/src/alerts"
	"github.com/jiaming2012/tick-analytics/src/analytics"
	"github.com/jiaming2012/tick-analytics/src/eventpubsub"
	"github.com/jiaming2012/tick-analytics/src/models"
	"github.com/jiaming2012/tick-analytics/src/persistence"
	"github.com/jiaming2012/tick-analytics/src/sampler"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	ticks     []models.Tick
	connected atomic.Bool
}

func (f *fakeSource) Start(ctx context.Context) <-chan models.Tick {
	out := make(chan models.Tick)
	go func() {
		defer close(out)
		f.connected.Store(true)
		for _, tick := range f.ticks {
			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (f *fakeSource) Connected() bool {
	return f.connected.Load()
}

type fakeCache struct {
	puts atomic.Int32
}

func (c *fakeCache) PutSnapshots(ctx context.Context, snapshots []*models.MetricsSnapshot) error {
	c.puts.Add(1)
	return nil
}

type fixture struct {
	pipeline  *Pipeline
	source    *fakeSource
	store     *persistence.MemoryStore
	gateway   *persistence.Gateway
	engine    *analytics.Engine
	rules     *alerts.Service
	evaluator *alerts.Evaluator
	cache     *fakeCache
}

func newFixture(t *testing.T, interval time.Duration, now func() time.Time) *fixture {
	eventpubsub.Init()

	ruleStore := alerts.NewMemoryRuleStore()
	evaluator := alerts.NewEvaluator(ruleStore, alerts.EvaluatorConfig{Now: now})
	require.NoError(t, evaluator.Refresh(context.Background()))

	store := persistence.NewMemoryStore()
	gateway := persistence.NewGateway(store, persistence.GatewayConfig{})
	engine := analytics.NewEngine(analytics.Config{Lookback: 3})
	source := &fakeSource{}
	cache := &fakeCache{}

	p := NewPipeline(Options{
		Source:    source,
		Sampler:   sampler.NewSampler(sampler.Config{Interval: interval, Now: now}),
		Engine:    engine,
		Evaluator: evaluator,
		Gateway:   gateway,
		Cache:     cache,
		Now:       now,
	})

	return &fixture{
		pipeline:  p,
		source:    source,
		store:     store,
		gateway:   gateway,
		engine:    engine,
		rules:     alerts.NewService(ruleStore, evaluator),
		evaluator: evaluator,
		cache:     cache,
	}
}

func TestProcessBoundary(t *testing.T) {
	now := func() time.Time { return t0.Add(10 * time.Second) }
	f := newFixture(t, 5*time.Second, now)
	ctx := context.Background()

	_, err := f.rules.CreateRule(ctx, &models.AlertRuleRequest{
		Symbol:    "BTCUSDT",
		Metric:    "price",
		Condition: models.ConditionGreaterThan,
		Threshold: 100,
	})
	require.NoError(t, err)

	f.pipeline.Ingest(models.Tick{Symbol: "BTCUSDT", Timestamp: t0.Add(time.Second), Price: 101, Quantity: 1})
	f.pipeline.Ingest(models.Tick{Symbol: "BTCUSDT", Timestamp: t0.Add(2 * time.Second), Price: 103, Quantity: 1})
	f.pipeline.Ingest(models.Tick{Symbol: "", Timestamp: t0, Price: 1, Quantity: 1})

	t.Run("first boundary produces a snapshot and a trigger", func(t *testing.T) {
		snaps, triggers, err := f.pipeline.ProcessBoundary(ctx, t0.Add(5*time.Second))
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.Equal(t, 102.0, snaps[0].Price)
		assert.Nil(t, snaps[0].ZScore)

		require.Len(t, triggers, 1)
		assert.Equal(t, 102.0, triggers[0].ObservedValue)
		assert.Equal(t, int32(1), f.cache.puts.Load())
	})

	t.Run("same boundary is a no-op", func(t *testing.T) {
		snaps, triggers, err := f.pipeline.ProcessBoundary(ctx, t0.Add(5*time.Second))
		require.NoError(t, err)
		assert.Empty(t, snaps)
		assert.Empty(t, triggers)
	})

	t.Run("empty interval carries the price forward", func(t *testing.T) {
		snaps, triggers, err := f.pipeline.ProcessBoundary(ctx, t0.Add(10*time.Second))
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		assert.Equal(t, 102.0, snaps[0].Price)
		assert.Len(t, triggers, 1)
	})

	t.Run("products reach the store", func(t *testing.T) {
		f.gateway.Drain(ctx)

		windows, err := f.store.QueryWindows(ctx, "BTCUSDT", t0, t0.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, windows, 2)
		assert.False(t, windows[0].Synthetic)
		assert.True(t, windows[1].Synthetic)

		triggers, err := f.store.QueryTriggers(ctx, t0, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Len(t, triggers, 2)
	})

	t.Run("status", func(t *testing.T) {
		status := f.pipeline.Status()
		assert.Equal(t, "disconnected", status.Status)
		assert.Equal(t, uint64(2), status.TicksReceived)
		assert.Equal(t, uint64(1), status.TicksRejected)
		require.NotNil(t, status.LastTickTimestamp)
		assert.Equal(t, t0.Add(2*time.Second), *status.LastTickTimestamp)
	})
}

func TestProcessBoundary_MissedBoundaries(t *testing.T) {
	now := func() time.Time { return t0.Add(15 * time.Second) }
	f := newFixture(t, 5*time.Second, now)
	ctx := context.Background()

	_, err := f.rules.CreateRule(ctx, &models.AlertRuleRequest{
		Symbol:    "BTCUSDT",
		Metric:    "price",
		Condition: models.ConditionGreaterThan,
		Threshold: 100,
	})
	require.NoError(t, err)

	f.pipeline.Ingest(models.Tick{Symbol: "BTCUSDT", Timestamp: t0.Add(time.Second), Price: 101, Quantity: 1})

	snaps, triggers, err := f.pipeline.ProcessBoundary(ctx, now())
	require.NoError(t, err)

	require.Len(t, snaps, 3)
	require.Len(t, triggers, 3)
	for i := range snaps {
		end := t0.Add(time.Duration(i+1) * 5 * time.Second)
		assert.Equal(t, end, snaps[i].Timestamp)
		assert.Equal(t, 101.0, snaps[i].Price)
		assert.Equal(t, end, triggers[i].WindowTimestamp)
	}

	f.gateway.Drain(ctx)
	stored, err := f.store.QuerySnapshots(ctx, "BTCUSDT", t0, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestRun(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond, time.Now)

	start := time.Now()
	for i := 0; i < 50; i++ {
		f.source.ticks = append(f.source.ticks, models.Tick{
			Symbol:    "AAA",
			Timestamp: start,
			Price:     100 + float64(i%3),
			Quantity:  1,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, f.pipeline.Run(ctx))

	snap, ok := f.engine.Latest("AAA")
	require.True(t, ok)
	assert.Equal(t, "AAA", snap.Symbol)
	assert.True(t, f.source.Connected())
	assert.Equal(t, "connected", f.pipeline.Status().Status)
}
