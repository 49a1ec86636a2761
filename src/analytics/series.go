package analytics

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/tick-analytics/src/indicators"
	"github.com/jiaming2012/tick-analytics/src/models"
)

// symbolSeries owns the bounded history and incremental indicator state of one symbol.
type symbolSeries struct {
	mu     sync.Mutex
	symbol string
	cfg    Config

	windows *indicators.RingBuffer[models.Window]
	returns *indicators.RingBuffer[indicators.TimedValue]
	ema     *indicators.Ema
	rsi     *indicators.Rsi

	garch          *indicators.Garch
	garchAttempted bool
	adfPValue      *float64
	adfAttempted   bool

	current derived
}

// derived holds the per-window values recomputed on every append.
type derived struct {
	timestamp          time.Time
	price              float64
	mean               *float64
	std                *float64
	zscore             *float64
	sma                *float64
	ema                *float64
	rsi                *float64
	volatility         *float64
	volatilityFallback bool
}

func newSymbolSeries(symbol string, cfg Config) *symbolSeries {
	capacity := cfg.capacity()
	return &symbolSeries{
		symbol:  symbol,
		cfg:     cfg,
		windows: indicators.NewRingBuffer[models.Window](capacity),
		returns: indicators.NewRingBuffer[indicators.TimedValue](capacity),
		ema:     indicators.NewEma(cfg.Lookback),
		rsi:     indicators.NewRsi(cfg.RsiPeriod),
	}
}

func (s *symbolSeries) append(w models.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, hasPrev := s.windows.Last()
	if hasPrev && !w.WindowEnd.After(prev.WindowEnd) {
		return fmt.Errorf("%s: window end %s after %s: %w", w.Symbol, w.WindowEnd.Format(time.RFC3339Nano), prev.WindowEnd.Format(time.RFC3339Nano), models.OutOfOrderWindowErr)
	}

	s.windows.Push(w)

	var ret *float64
	if hasPrev {
		r := indicators.SimpleReturns([]float64{prev.VWAP, w.VWAP})[0]
		s.returns.Push(indicators.TimedValue{Timestamp: w.WindowEnd, Value: r})
		ret = &r
	}

	d := derived{
		timestamp: w.WindowEnd,
		price:     w.VWAP,
	}

	if s.windows.Len() >= s.cfg.Lookback {
		prices := s.prices(s.cfg.Lookback)
		if rs, err := indicators.NewRollingStats(prices); err == nil {
			d.mean = models.Float(rs.Mean)
			d.std = models.Float(rs.Std)
			d.sma = models.Float(rs.Mean)
			d.zscore = rs.ZScore(w.VWAP)
		}
	}

	d.ema = s.ema.Update(w.VWAP, d.sma)
	d.rsi = s.rsi.Update(w.VWAP)
	d.volatility, d.volatilityFallback = s.volatility(ret)

	if !s.adfAttempted && s.windows.Len() >= s.cfg.AdfMinSamples {
		s.refreshAdfLocked()
	}

	s.current = d
	return nil
}

func (s *symbolSeries) prices(n int) []float64 {
	tail := s.windows.Tail(n)
	out := make([]float64, len(tail))
	for i, w := range tail {
		out[i] = w.VWAP
	}

	return out
}

func (s *symbolSeries) returnValues(n int) []float64 {
	tail := s.returns.Tail(n)
	out := make([]float64, len(tail))
	for i, r := range tail {
		out[i] = r.Value
	}

	return out
}

// volatility rolls the fitted model forward with the newest return. Before a fit
// exists, or when fitting failed, the realized volatility is returned and flagged.
func (s *symbolSeries) volatility(ret *float64) (*float64, bool) {
	if s.garch != nil {
		if ret != nil {
			return models.Float(s.garch.Update(*ret)), false
		}
		return models.Float(s.garch.Forecast()), false
	}

	if !s.garchAttempted && s.returns.Len() >= s.cfg.GarchMinSamples {
		s.refitGarchLocked()
		if s.garch != nil {
			return models.Float(s.garch.Forecast()), false
		}
	}

	sample := s.returnValues(s.cfg.VolatilitySample)
	if len(sample) < 2 {
		return nil, false
	}

	rv, err := indicators.RealizedVolatility(sample)
	if err != nil {
		return nil, false
	}

	return models.Float(rv), true
}

func (s *symbolSeries) refitGarch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.returns.Len() < s.cfg.GarchMinSamples {
		return
	}

	s.refitGarchLocked()
}

func (s *symbolSeries) refitGarchLocked() {
	s.garchAttempted = true

	opts := indicators.DefaultGarchFitOptions()
	opts.MinSamples = s.cfg.GarchMinSamples
	opts.MaxIterations = s.cfg.GarchMaxIterations

	model, err := indicators.FitGarch(s.returnValues(s.cfg.VolatilitySample), opts)
	if err != nil {
		if errors.Is(err, indicators.NotConvergedErr) {
			log.WithField("symbol", s.symbol).Debugf("garch fallback to realized volatility: %v", err)
		} else {
			log.WithField("symbol", s.symbol).Warnf("garch fit failed: %v", err)
		}

		s.garch = nil
		return
	}

	s.garch = model
}

func (s *symbolSeries) refreshAdf() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.windows.Len() < s.cfg.AdfMinSamples {
		return
	}

	s.refreshAdfLocked()
}

// refreshAdfLocked keeps the previous p-value when the test cannot be run.
func (s *symbolSeries) refreshAdfLocked() {
	s.adfAttempted = true

	result, err := indicators.AdfTest(s.prices(s.cfg.AdfSample), s.cfg.AdfLags)
	if err != nil {
		log.WithField("symbol", s.symbol).Debugf("adf skipped: %v", err)
		return
	}

	s.adfPValue = models.Float(result.PValue)
}

func (s *symbolSeries) lastWindowEnd() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows.Last()
	return w.WindowEnd, ok
}

func (s *symbolSeries) alignedReturns(n int) []indicators.TimedValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.returns.Tail(n)
}

func (s *symbolSeries) priceHistory(n int) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		n = s.windows.Len()
	}

	return s.prices(n)
}

func (s *symbolSeries) windowHistory() []models.Window {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.windows.Values()
}

func (s *symbolSeries) state() (derived, *float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.windows.Last()
	return s.current, s.adfPValue, ok
}
