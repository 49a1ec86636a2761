package sampler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiaming2012/tick-analytics/src/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSampler() *Sampler {
	return NewSampler(Config{
		Interval: 5 * time.Second,
		Now:      func() time.Time { return t0.Add(time.Hour) },
	})
}

func tick(symbol string, offset time.Duration, price, qty float64) models.Tick {
	return models.Tick{Symbol: symbol, Timestamp: t0.Add(offset), Price: price, Quantity: qty}
}

func TestSampler_Vwap(t *testing.T) {
	cases := []struct {
		name   string
		prices []float64
		qtys   []float64
		vwap   float64
	}{
		// 100 + 202 + 99 + 102 = 503 over 5 units
		{"mixed quantities", []float64{100, 101, 99, 102}, []float64{1, 2, 1, 1}, 100.6},
		// 100 + 200 + 99 + 102 = 501 over 5 units
		{"repeated price", []float64{100, 100, 99, 102}, []float64{1, 2, 1, 1}, 100.2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSampler()
			for i := range tc.prices {
				require.NoError(t, s.Ingest(tick("BTCUSDT", time.Duration(i)*time.Second, tc.prices[i], tc.qtys[i])))
			}

			windows := s.Flush("BTCUSDT", t0.Add(5*time.Second))
			require.Len(t, windows, 1)

			w := windows[0]
			assert.InDelta(t, tc.vwap, w.VWAP, 1e-9)
			assert.Equal(t, 5.0, w.Volume)
			assert.Equal(t, 4, w.TickCount)
			assert.Equal(t, 99.0, w.Low)
			assert.Equal(t, 102.0, w.High)
			assert.False(t, w.Synthetic)
			assert.Equal(t, t0, w.WindowStart)
			assert.Equal(t, t0.Add(5*time.Second), w.WindowEnd)
		})
	}
}

func TestSampler_HalfOpenInterval(t *testing.T) {
	s := newTestSampler()
	require.NoError(t, s.Ingest(tick("ETHUSDT", 4*time.Second+999*time.Millisecond, 10, 1)))
	require.NoError(t, s.Ingest(tick("ETHUSDT", 5*time.Second, 20, 1)))

	windows := s.Flush("ETHUSDT", t0.Add(5*time.Second))
	require.Len(t, windows, 1)
	assert.Equal(t, 10.0, windows[0].VWAP)
	assert.Equal(t, 1, windows[0].TickCount)

	windows = s.Flush("ETHUSDT", t0.Add(10*time.Second))
	require.Len(t, windows, 1)
	assert.Equal(t, 20.0, windows[0].VWAP)
}

func TestSampler_SyntheticWindow(t *testing.T) {
	s := newTestSampler()
	require.NoError(t, s.Ingest(tick("SOLUSDT", time.Second, 150, 2)))

	windows := s.FlushAll(t0.Add(5 * time.Second))
	require.Len(t, windows, 1)

	windows = s.FlushAll(t0.Add(10 * time.Second))
	require.Len(t, windows, 1)

	w := windows[0]
	assert.True(t, w.Synthetic)
	assert.Equal(t, 150.0, w.VWAP)
	assert.Equal(t, 0.0, w.Volume)
	assert.Equal(t, 0, w.TickCount)
	assert.Equal(t, t0.Add(10*time.Second), w.WindowEnd)

	t.Run("missed flushes are filled", func(t *testing.T) {
		windows := s.FlushAll(t0.Add(30 * time.Second))
		require.Len(t, windows, 4)
		for _, w := range windows {
			assert.True(t, w.Synthetic)
		}
	})
}

func TestSampler_NoHistoryNoWindow(t *testing.T) {
	s := newTestSampler()
	require.NoError(t, s.Ingest(tick("XRPUSDT", 7*time.Second, 0.5, 100)))

	assert.Empty(t, s.Flush("XRPUSDT", t0.Add(5*time.Second)))
	assert.Empty(t, s.Flush("UNKNOWN", t0.Add(5*time.Second)))
}

func TestSampler_StrictlyIncreasing(t *testing.T) {
	s := newTestSampler()
	var all []models.Window
	for i := 0; i < 50; i++ {
		offset := time.Duration(i) * 1700 * time.Millisecond
		require.NoError(t, s.Ingest(tick("BTCUSDT", offset, 100+float64(i%7), 1)))
		if i%3 == 0 {
			all = append(all, s.Flush("BTCUSDT", t0.Add(offset))...)
		}
	}
	all = append(all, s.Flush("BTCUSDT", t0.Add(2*time.Minute))...)

	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i].WindowEnd.After(all[i-1].WindowEnd))
		assert.Equal(t, all[i-1].WindowEnd, all[i].WindowStart)
	}
}

func TestSampler_LateTicks(t *testing.T) {
	s := newTestSampler()
	require.NoError(t, s.Ingest(tick("BTCUSDT", time.Second, 100, 1)))
	require.Len(t, s.Flush("BTCUSDT", t0.Add(5*time.Second)), 1)

	// stamped inside the closed interval, folded into the open one
	require.NoError(t, s.Ingest(tick("BTCUSDT", 2*time.Second, 90, 1)))
	require.NoError(t, s.Ingest(tick("BTCUSDT", 6*time.Second, 110, 1)))

	windows := s.Flush("BTCUSDT", t0.Add(10*time.Second))
	require.Len(t, windows, 1)
	assert.Equal(t, 2, windows[0].TickCount)
	assert.InDelta(t, 100.0, windows[0].VWAP, 1e-9)
	assert.Equal(t, int64(1), s.Stats().LateTicks)
}

func TestSampler_AlignedBoundaries(t *testing.T) {
	s := newTestSampler()
	require.NoError(t, s.Ingest(tick("BTCUSDT", time.Second, 100, 1)))
	require.NoError(t, s.Ingest(tick("ETHUSDT", 3*time.Second, 10, 1)))
	require.Len(t, s.FlushAll(t0.Add(5*time.Second)), 2)

	require.NoError(t, s.Ingest(tick("BTCUSDT", 6*time.Second, 101, 1)))
	windows := s.FlushAll(t0.Add(10 * time.Second))
	require.Len(t, windows, 2)
	assert.Equal(t, windows[0].WindowEnd, windows[1].WindowEnd)
	assert.Equal(t, "BTCUSDT", windows[0].Symbol)
	assert.Equal(t, "ETHUSDT", windows[1].Symbol)
	assert.True(t, windows[1].Synthetic)

	t.Run("new symbol starts at the last boundary", func(t *testing.T) {
		require.NoError(t, s.Ingest(tick("SOLUSDT", time.Second, 150, 1)))
		windows := s.Flush("SOLUSDT", t0.Add(15*time.Second))
		require.Len(t, windows, 1)
		assert.Equal(t, t0.Add(10*time.Second), windows[0].WindowStart)
	})
}

func TestSampler_Rejects(t *testing.T) {
	s := newTestSampler()

	err := s.Ingest(models.Tick{Symbol: "BTCUSDT", Timestamp: t0, Price: -1, Quantity: 1})
	assert.True(t, errors.Is(err, models.InvalidTickErr))

	err = s.Ingest(tick("BTCUSDT", 2*time.Hour, 100, 1))
	assert.True(t, errors.Is(err, FutureTickErr))

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.TicksRejected)
	assert.Equal(t, int64(0), stats.TicksReceived)
}

func TestSampler_ConcurrentIngestAndFlush(t *testing.T) {
	s := newTestSampler()
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	const perSymbol = 2000
	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < perSymbol; i++ {
				offset := time.Duration(i) * 10 * time.Millisecond
				assert.NoError(t, s.Ingest(tick(sym, offset, 100, 1)))
			}
		}(sym)
	}

	done := make(chan struct{})
	var flushed []models.Window
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			flushed = append(flushed, s.FlushAll(t0.Add(time.Duration(i)*time.Second))...)
		}
	}()

	wg.Wait()
	<-done
	flushed = append(flushed, s.FlushAll(t0.Add(time.Minute))...)

	total := 0
	for _, w := range flushed {
		total += w.TickCount
	}
	assert.Equal(t, perSymbol*len(symbols), total)
	assert.Equal(t, int64(perSymbol*len(symbols)), s.Stats().TicksReceived)
}
