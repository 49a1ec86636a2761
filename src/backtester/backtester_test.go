package backtester

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

func windows(symbol string, prices ...float64) []models.Window {
	out := make([]models.Window, len(prices))
	for i, p := range prices {
		start := t0.Add(time.Duration(i) * 5 * time.Second)
		out[i] = models.Window{Symbol: symbol, WindowStart: start, WindowEnd: start.Add(5 * time.Second), VWAP: p, Volume: 1, TickCount: 1}
	}
	return out
}

func zs(values ...float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		v := values[i]
		out[i] = &v
	}
	return out
}

func TestEngine_Run(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("deterministic replay", func(t *testing.T) {
		ws := windows("BTCUSDT", 100, 102, 103, 101, 100)
		z := zs(0, 2.1, 2.3, 0.1, -0.05)

		first, err := engine.Run("BTCUSDT", ws, z)
		require.NoError(t, err)
		second, err := engine.Run("BTCUSDT", ws, z)
		require.NoError(t, err)

		assert.Equal(t, first, second)

		require.Len(t, first.Trades, 1)
		trade := first.Trades[0]
		assert.Equal(t, models.SideShort, trade.Side)
		assert.Equal(t, 102.0, trade.EntryPrice)
		assert.Equal(t, 101.0, trade.ExitPrice)
		assert.Equal(t, ws[1].WindowEnd, trade.EntryTs)
		assert.Equal(t, ws[3].WindowEnd, trade.ExitTs)
		assert.InDelta(t, 1.0, trade.PnL, 1e-12)

		assert.Equal(t, 1, first.TradeCount)
		assert.Equal(t, 1.0, first.WinRate)
		assert.InDelta(t, 1.0, first.TotalPnL, 1e-12)
		assert.Nil(t, first.OpenPosition)
	})

	t.Run("long exits on sign flip", func(t *testing.T) {
		ws := windows("ETHUSDT", 50, 48, 49, 51)
		result, err := engine.Run("ETHUSDT", ws, zs(0, -2.5, -1.0, 0.7))
		require.NoError(t, err)

		require.Len(t, result.Trades, 1)
		assert.Equal(t, models.SideLong, result.Trades[0].Side)
		assert.InDelta(t, 3.0, result.Trades[0].PnL, 1e-12)
	})

	t.Run("one transition per window", func(t *testing.T) {
		// the exit window also qualifies for a new entry
		ws := windows("ETHUSDT", 50, 48, 52, 51)
		result, err := engine.Run("ETHUSDT", ws, zs(-2.2, 2.4, 2.4, 0))
		require.NoError(t, err)

		require.Len(t, result.Trades, 2)
		assert.Equal(t, models.SideLong, result.Trades[0].Side)
		assert.Equal(t, ws[1].WindowEnd, result.Trades[0].ExitTs)
		assert.Equal(t, models.SideShort, result.Trades[1].Side)
		assert.Equal(t, ws[2].WindowEnd, result.Trades[1].EntryTs)
		assert.Equal(t, 1, result.Wins)
		assert.Equal(t, 1, result.Losses)
		assert.Equal(t, 0.5, result.WinRate)
	})

	t.Run("open position is reported not counted", func(t *testing.T) {
		ws := windows("SOLUSDT", 10, 11, 12)
		result, err := engine.Run("SOLUSDT", ws, zs(0, 2.5, 3))
		require.NoError(t, err)

		assert.Empty(t, result.Trades)
		assert.Equal(t, 0.0, result.WinRate)
		require.NotNil(t, result.OpenPosition)
		assert.Equal(t, models.SideShort, result.OpenPosition.Side)
	})

	t.Run("nil z-scores skipped", func(t *testing.T) {
		ws := windows("SOLUSDT", 10, 11, 12)
		z := []*float64{nil, nil, models.Float(1)}
		result, err := engine.Run("SOLUSDT", ws, z)
		require.NoError(t, err)
		assert.Empty(t, result.Trades)
		assert.Nil(t, result.OpenPosition)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := engine.Run("BTCUSDT", windows("BTCUSDT", 1, 2), zs(0))
		assert.True(t, errors.Is(err, models.SeriesLengthMismatchErr))
	})
}

func TestEngine_RunWindows(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("shorter than lookback", func(t *testing.T) {
		result, err := engine.RunWindows("BTCUSDT", windows("BTCUSDT", 1, 2, 3))
		require.NoError(t, err)
		assert.Empty(t, result.Trades)
		assert.Equal(t, 3, result.Windows)
	})

	t.Run("spike reverts", func(t *testing.T) {
		prices := make([]float64, 40)
		for i := range prices {
			prices[i] = 100 + 0.1*math.Sin(float64(i))
		}
		prices[25] = 110
		prices[26] = 100

		result, err := engine.RunWindows("BTCUSDT", windows("BTCUSDT", prices...))
		require.NoError(t, err)
		require.NotEmpty(t, result.Trades)
		assert.Equal(t, models.SideShort, result.Trades[0].Side)
		assert.Equal(t, 110.0, result.Trades[0].EntryPrice)
		assert.Greater(t, result.Trades[0].PnL, 0.0)
	})
}

type fakeSource struct {
	windows []models.Window
	err     error
}

func (f *fakeSource) QueryWindows(ctx context.Context, symbol string, from, to time.Time) ([]models.Window, error) {
	return f.windows, f.err
}

func TestService_Backtest(t *testing.T) {
	t.Run("queries the source", func(t *testing.T) {
		svc := NewService(&fakeSource{windows: windows("BTCUSDT", 1, 2)}, NewEngine(DefaultConfig()))
		result, err := svc.Backtest(context.Background(), "BTCUSDT", t0, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, result.Windows)
	})

	t.Run("source failure", func(t *testing.T) {
		svc := NewService(&fakeSource{err: errors.New("db down")}, NewEngine(DefaultConfig()))
		_, err := svc.Backtest(context.Background(), "BTCUSDT", t0, t0.Add(time.Hour))
		assert.Error(t, err)
	})
}
