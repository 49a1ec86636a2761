package analytics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/tick-analytics/src/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func window(symbol string, i int, price float64) models.Window {
	start := t0.Add(time.Duration(i) * 5 * time.Second)
	return models.Window{
		Symbol:      symbol,
		WindowStart: start,
		WindowEnd:   start.Add(5 * time.Second),
		VWAP:        price,
		Volume:      1,
		TickCount:   1,
		Low:         price,
		High:        price,
	}
}

func wave(i int) float64 {
	return 100 + 5*math.Sin(float64(i)*0.5) + float64(i)*0.1
}

func TestEngine_NullUntilEnoughHistory(t *testing.T) {
	e := NewEngine(DefaultConfig())

	for i := 0; i < 19; i++ {
		snap, err := e.OnWindowClosed(window("BTCUSDT", i, wave(i)))
		require.NoError(t, err)

		assert.Nil(t, snap.Mean)
		assert.Nil(t, snap.Std)
		assert.Nil(t, snap.ZScore)
		assert.Nil(t, snap.SMA)
		assert.Nil(t, snap.EMA)
		assert.Nil(t, snap.Trend)
		assert.Nil(t, snap.ADFPValue)
		assert.Nil(t, snap.ClusterID)
		if i < 14 {
			assert.Nil(t, snap.RSI)
		} else {
			assert.NotNil(t, snap.RSI)
		}
		assert.Equal(t, wave(i), snap.Price)
	}

	snap, err := e.OnWindowClosed(window("BTCUSDT", 19, wave(19)))
	require.NoError(t, err)
	require.NotNil(t, snap.Mean)
	require.NotNil(t, snap.ZScore)
	require.NotNil(t, snap.SMA)
	require.NotNil(t, snap.EMA)
	require.NotNil(t, snap.Trend)
	assert.Equal(t, *snap.SMA, *snap.EMA)
	assert.Equal(t, models.TrendNeutral, *snap.Trend)
	assert.NotNil(t, snap.Volatility)
}

func TestEngine_ConstantPrice(t *testing.T) {
	e := NewEngine(DefaultConfig())

	var snap *models.MetricsSnapshot
	var err error
	for i := 0; i < 40; i++ {
		snap, err = e.OnWindowClosed(window("DOGEUSDT", i, 0.125))
		require.NoError(t, err)
	}

	require.NotNil(t, snap.Std)
	assert.Equal(t, 0.0, *snap.Std)
	assert.Nil(t, snap.ZScore)

	require.NotNil(t, snap.RSI)
	assert.Equal(t, 100.0, *snap.RSI)

	require.NotNil(t, snap.Volatility)
	assert.True(t, snap.VolatilityFallback)
	assert.Equal(t, 0.0, *snap.Volatility)
}

func TestEngine_OutOfOrderWindow(t *testing.T) {
	e := NewEngine(DefaultConfig())
	require.NoError(t, e.Append(window("BTCUSDT", 5, 100)))

	err := e.Append(window("BTCUSDT", 5, 101))
	assert.True(t, errors.Is(err, models.OutOfOrderWindowErr))

	err = e.Append(window("BTCUSDT", 4, 101))
	assert.True(t, errors.Is(err, models.OutOfOrderWindowErr))
}

func TestEngine_BoundedHistory(t *testing.T) {
	e := NewEngine(DefaultConfig())
	for i := 0; i < 1000; i++ {
		require.NoError(t, e.Append(window("BTCUSDT", i, wave(i))))
	}

	windows := e.Windows("BTCUSDT")
	require.Len(t, windows, 200)
	assert.Equal(t, window("BTCUSDT", 800, wave(800)).WindowEnd, windows[0].WindowEnd)
	assert.Equal(t, window("BTCUSDT", 999, wave(999)).WindowEnd, windows[199].WindowEnd)

	history, err := e.PriceHistory("BTCUSDT", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, history.Count)
	assert.Equal(t, wave(999), history.Prices[9])
}

func TestEngine_CapacityCoversLookbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryCapacity = 10
	e := NewEngine(cfg)
	for i := 0; i < 300; i++ {
		require.NoError(t, e.Append(window("BTCUSDT", i, wave(i))))
	}

	assert.Len(t, e.Windows("BTCUSDT"), 101)
}

func TestEngine_Correlation(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(DefaultConfig())

	boundary := func(i int) []models.Window {
		return []models.Window{
			window("BTCUSDT", i, wave(i)),
			window("ETHUSDT", i, wave(i)/2),
			window("DOGEUSDT", i, 0.125),
		}
	}

	for i := 0; i < 10; i++ {
		snaps, err := e.ProcessBoundary(ctx, boundary(i))
		require.NoError(t, err)
		require.Len(t, snaps, 3)
		for _, s := range snaps {
			assert.Empty(t, s.Correlation)
		}
	}

	snaps, err := e.ProcessBoundary(ctx, boundary(10))
	require.NoError(t, err)

	bySymbol := make(map[string]*models.MetricsSnapshot)
	for _, s := range snaps {
		bySymbol[s.Symbol] = s
	}

	assert.InDelta(t, 1.0, bySymbol["BTCUSDT"].Correlation["ETHUSDT"], 1e-9)
	assert.InDelta(t, 1.0, bySymbol["ETHUSDT"].Correlation["BTCUSDT"], 1e-9)
	assert.NotContains(t, bySymbol["BTCUSDT"].Correlation, "DOGEUSDT")

	matrix := e.CorrelationMatrix()
	assert.Len(t, matrix.Correlations, 1)
	assert.InDelta(t, 1.0, matrix.Correlations["BTCUSDT-ETHUSDT"], 1e-9)

	t.Run("clusters", func(t *testing.T) {
		require.NotNil(t, bySymbol["BTCUSDT"].ClusterID)
		assert.Equal(t, 0, *bySymbol["BTCUSDT"].ClusterID)
		assert.Equal(t, 0, *bySymbol["ETHUSDT"].ClusterID)
		assert.Equal(t, 1, *bySymbol["DOGEUSDT"].ClusterID)
		assert.Equal(t, [][]string{{"BTCUSDT", "ETHUSDT"}, {"DOGEUSDT"}}, e.Clusters().Clusters)
	})

	t.Run("misaligned peer is deferred", func(t *testing.T) {
		// ETH moves against BTC, but only BTC closes this boundary
		_, err := e.ProcessBoundary(ctx, []models.Window{window("BTCUSDT", 11, wave(11)*3)})
		require.NoError(t, err)

		assert.InDelta(t, 1.0, e.CorrelationMatrix().Correlations["BTCUSDT-ETHUSDT"], 1e-9)
	})

	t.Run("snapshots do not share maps", func(t *testing.T) {
		a, err := e.Snapshot("BTCUSDT")
		require.NoError(t, err)
		b, err := e.Snapshot("BTCUSDT")
		require.NoError(t, err)

		a.Correlation["ETHUSDT"] = -5
		assert.InDelta(t, 1.0, b.Correlation["ETHUSDT"], 1e-9)
	})
}

func TestEngine_ProcessBoundaryDeterministic(t *testing.T) {
	run := func() []*models.MetricsSnapshot {
		e := NewEngine(DefaultConfig())
		var last []*models.MetricsSnapshot
		for i := 0; i < 60; i++ {
			snaps, err := e.ProcessBoundary(context.Background(), []models.Window{
				window("ETHUSDT", i, wave(i+3)),
				window("BTCUSDT", i, wave(i)),
			})
			require.NoError(t, err)
			last = snaps
		}
		return last
	}

	a, b := run(), run()
	require.Len(t, a, 2)
	assert.Equal(t, "BTCUSDT", a[0].Symbol)
	assert.Equal(t, a, b)
}

func TestEngine_ProcessBoundaryCatchUp(t *testing.T) {
	e := NewEngine(DefaultConfig())

	var windows []models.Window
	for i := 2; i >= 0; i-- {
		windows = append(windows, window("ETHUSDT", i, wave(i)/2), window("BTCUSDT", i, wave(i)))
	}

	snaps, err := e.ProcessBoundary(context.Background(), windows)
	require.NoError(t, err)
	require.Len(t, snaps, 6)

	for i, snap := range snaps {
		end := t0.Add(time.Duration(i/2+1) * 5 * time.Second)
		assert.Equal(t, end, snap.Timestamp)
		if i%2 == 0 {
			assert.Equal(t, "BTCUSDT", snap.Symbol)
			assert.Equal(t, wave(i/2), snap.Price)
		} else {
			assert.Equal(t, "ETHUSDT", snap.Symbol)
		}
	}

	latest, ok := e.Latest("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, t0.Add(15*time.Second), latest.Timestamp)
	assert.Len(t, e.Windows("BTCUSDT"), 3)
}

func TestEngine_ClustersFollowCorrelations(t *testing.T) {
	e := NewEngine(DefaultConfig())

	for i := 0; i < 14; i++ {
		_, err := e.ProcessBoundary(context.Background(), []models.Window{
			window("BTCUSDT", i, wave(i)),
			window("ETHUSDT", i, wave(i)/2),
		})
		require.NoError(t, err)

		if i < 10 {
			assert.True(t, e.Clusters().Timestamp.IsZero())
			continue
		}

		end := t0.Add(time.Duration(i+1) * 5 * time.Second)
		assert.Equal(t, end, e.CorrelationMatrix().Timestamp)
		assert.Equal(t, end, e.Clusters().Timestamp)
		assert.Equal(t, [][]string{{"BTCUSDT", "ETHUSDT"}}, e.Clusters().Clusters)
	}
}

func TestEngine_PeriodicTasks(t *testing.T) {
	e := NewEngine(DefaultConfig())
	for i := 0; i < 120; i++ {
		require.NoError(t, e.Append(window("BTCUSDT", i, wave(i))))
	}

	e.RefitVolatility(context.Background())
	e.RefreshStationarity(context.Background())

	snap, err := e.Snapshot("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, snap.ADFPValue)
	assert.GreaterOrEqual(t, *snap.ADFPValue, 0.0)
	assert.LessOrEqual(t, *snap.ADFPValue, 1.0)
	require.NotNil(t, snap.Volatility)
	assert.Greater(t, *snap.Volatility, 0.0)

	latest, ok := e.Latest("BTCUSDT")
	require.True(t, ok)
	assert.Same(t, snap, latest)
}

func TestEngine_UnknownSymbol(t *testing.T) {
	e := NewEngine(DefaultConfig())

	_, err := e.Snapshot("NOPE")
	assert.True(t, errors.Is(err, models.InsufficientDataErr))

	_, err = e.PriceHistory("NOPE", 5)
	assert.True(t, errors.Is(err, models.InsufficientDataErr))
}
