package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jiaming2012/tick-analytics/src/indicators"
	"github.com/jiaming2012/tick-analytics/src/models"
)

// Engine keeps rolling per-symbol series and derives a MetricsSnapshot for every
// closed window. Snapshots it returns are never mutated afterwards.
type Engine struct {
	cfg    Config
	tracer trace.Tracer

	mu     sync.RWMutex
	series map[string]*symbolSeries
	latest map[string]*models.MetricsSnapshot

	crossMu          sync.RWMutex
	correlations     map[indicators.SymbolPair]float64
	correlationsAsOf time.Time
	clusterIDs       map[string]int
	clusters         [][]string
	clustersAsOf     time.Time
	clustersComputed bool
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:          cfg.WithDefaults(),
		tracer:       otel.Tracer("analytics"),
		series:       make(map[string]*symbolSeries),
		latest:       make(map[string]*models.MetricsSnapshot),
		correlations: make(map[indicators.SymbolPair]float64),
		clusterIDs:   make(map[string]int),
	}
}

func (e *Engine) seriesFor(symbol string) *symbolSeries {
	e.mu.RLock()
	s, ok := e.series[symbol]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok = e.series[symbol]; ok {
		return s
	}

	s = newSymbolSeries(symbol, e.cfg)
	e.series[symbol] = s
	return s
}

func (e *Engine) allSeries() map[string]*symbolSeries {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]*symbolSeries, len(e.series))
	for k, v := range e.series {
		out[k] = v
	}

	return out
}

// Append adds a closed window to its symbol's history. Windows must advance the series.
func (e *Engine) Append(w models.Window) error {
	if err := e.seriesFor(w.Symbol).append(w); err != nil {
		return fmt.Errorf("analytics.Append: %w", err)
	}

	return nil
}

// OnWindowClosed appends w, refreshes cross-symbol state at its boundary and returns
// the new snapshot for its symbol.
func (e *Engine) OnWindowClosed(w models.Window) (*models.MetricsSnapshot, error) {
	if err := e.Append(w); err != nil {
		return nil, err
	}

	e.RefreshCorrelations(w.WindowEnd)
	return e.Snapshot(w.Symbol)
}

// ProcessBoundary walks the boundaries of a flush in ascending order. For each one it
// appends that boundary's windows, refreshes cross-symbol state and builds one snapshot
// per symbol that closed there. Snapshots are returned in boundary order, then by
// symbol. Out-of-order windows are logged and skipped.
func (e *Engine) ProcessBoundary(ctx context.Context, windows []models.Window) ([]*models.MetricsSnapshot, error) {
	ctx, span := e.tracer.Start(ctx, "analytics.ProcessBoundary", trace.WithAttributes(attribute.Int("windows", len(windows))))
	defer span.End()

	byBoundary := make(map[int64][]models.Window)
	var boundaries []time.Time
	for _, w := range windows {
		key := w.WindowEnd.UnixNano()
		if _, ok := byBoundary[key]; !ok {
			boundaries = append(boundaries, w.WindowEnd)
		}
		byBoundary[key] = append(byBoundary[key], w)
	}

	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].Before(boundaries[j]) })

	var snapshots []*models.MetricsSnapshot
	for _, b := range boundaries {
		snaps, err := e.processBoundary(ctx, b, byBoundary[b.UnixNano()])
		if err != nil {
			return nil, fmt.Errorf("analytics.ProcessBoundary: %w", err)
		}

		snapshots = append(snapshots, snaps...)
	}

	return snapshots, nil
}

func (e *Engine) processBoundary(ctx context.Context, boundary time.Time, windows []models.Window) ([]*models.MetricsSnapshot, error) {
	appended := make([]bool, len(windows))

	g, _ := errgroup.WithContext(ctx)
	for i, w := range windows {
		i, w := i, w
		g.Go(func() error {
			if err := e.seriesFor(w.Symbol).append(w); err != nil {
				log.WithField("symbol", w.Symbol).Warnf("analytics: dropping window: %v", err)
				return nil
			}

			appended[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.RefreshCorrelations(boundary)

	var symbols []string
	for i, w := range windows {
		if appended[i] {
			symbols = append(symbols, w.Symbol)
		}
	}
	sort.Strings(symbols)

	snapshots := make([]*models.MetricsSnapshot, len(symbols))
	g, _ = errgroup.WithContext(ctx)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			snap, err := e.Snapshot(symbol)
			if err != nil {
				return err
			}

			snapshots[i] = snap
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return snapshots, nil
}

// Snapshot builds, stores and returns the current snapshot for symbol.
func (e *Engine) Snapshot(symbol string) (*models.MetricsSnapshot, error) {
	e.mu.RLock()
	series, ok := e.series[symbol]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("analytics.Snapshot: %s: %w", symbol, models.InsufficientDataErr)
	}

	d, adf, ok := series.state()
	if !ok {
		return nil, fmt.Errorf("analytics.Snapshot: %s: %w", symbol, models.InsufficientDataErr)
	}

	snap := &models.MetricsSnapshot{
		Symbol:             symbol,
		Timestamp:          d.timestamp,
		Price:              d.price,
		Mean:               copyFloat(d.mean),
		Std:                copyFloat(d.std),
		ZScore:             copyFloat(d.zscore),
		SMA:                copyFloat(d.sma),
		EMA:                copyFloat(d.ema),
		RSI:                copyFloat(d.rsi),
		Volatility:         copyFloat(d.volatility),
		VolatilityFallback: d.volatilityFallback,
		ADFPValue:          copyFloat(adf),
		Trend:              indicators.ClassifyTrend(d.sma, d.ema, e.cfg.TrendBand),
		Correlation:        make(map[string]float64),
	}

	e.crossMu.RLock()
	for pair, c := range e.correlations {
		switch symbol {
		case pair.A:
			snap.Correlation[pair.B] = c
		case pair.B:
			snap.Correlation[pair.A] = c
		}
	}

	if id, ok := e.clusterIDs[symbol]; ok && e.clustersComputed {
		snap.ClusterID = &id
	}
	e.crossMu.RUnlock()

	e.mu.Lock()
	if prev, ok := e.latest[symbol]; !ok || !snap.Timestamp.Before(prev.Timestamp) {
		e.latest[symbol] = snap
	}
	e.mu.Unlock()

	return snap, nil
}

// RefreshCorrelations recomputes every pair whose latest windows both close at
// boundary. Other pairs keep their last known value.
func (e *Engine) RefreshCorrelations(boundary time.Time) {
	all := e.allSeries()

	var ready []string
	for symbol, s := range all {
		if end, ok := s.lastWindowEnd(); ok && end.Equal(boundary) {
			ready = append(ready, symbol)
		}
	}
	sort.Strings(ready)

	if len(ready) < 2 {
		return
	}

	returns := make(map[string][]indicators.TimedValue, len(ready))
	for _, symbol := range ready {
		returns[symbol] = all[symbol].alignedReturns(e.cfg.CorrelationLookback)
	}

	updates := make(map[indicators.SymbolPair]float64)
	for i := 0; i < len(ready); i++ {
		for j := i + 1; j < len(ready); j++ {
			xs, ys := indicators.AlignByTimestamp(returns[ready[i]], returns[ready[j]], e.cfg.CorrelationLookback)
			if len(xs) < e.cfg.CorrelationMinSamples {
				continue
			}

			c, err := indicators.Pearson(xs, ys)
			if err != nil {
				continue
			}

			updates[indicators.NewSymbolPair(ready[i], ready[j])] = c
		}
	}

	e.crossMu.Lock()
	for pair, c := range updates {
		e.correlations[pair] = c
	}
	if len(updates) > 0 {
		e.correlationsAsOf = boundary
	}
	e.crossMu.Unlock()

	if len(updates) > 0 {
		e.refreshClusters()
	}
}

// refreshClusters groups symbols into connected components of strong correlation.
// It runs whenever a boundary refreshes at least one correlation.
func (e *Engine) refreshClusters() {
	symbols := e.Symbols()

	e.crossMu.Lock()
	defer e.crossMu.Unlock()

	ids, groups := indicators.ClusterByCorrelation(symbols, e.correlations, e.cfg.ClusterThreshold)
	e.clusterIDs = ids
	e.clusters = groups
	e.clustersAsOf = e.correlationsAsOf
	e.clustersComputed = true
}

// RefitVolatility refits the volatility model of every symbol on its latest returns.
func (e *Engine) RefitVolatility(ctx context.Context) {
	_, span := e.tracer.Start(ctx, "analytics.RefitVolatility")
	defer span.End()

	for _, s := range e.allSeries() {
		s.refitGarch()
	}
}

// RefreshStationarity reruns the ADF test for every symbol.
func (e *Engine) RefreshStationarity(ctx context.Context) {
	_, span := e.tracer.Start(ctx, "analytics.RefreshStationarity")
	defer span.End()

	for _, s := range e.allSeries() {
		s.refreshAdf()
	}
}

func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.series))
	for s := range e.series {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}

	c := *v
	return &c
}
