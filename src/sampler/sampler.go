package sampler

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/tick-analytics/src/models"
)

var FutureTickErr = fmt.Errorf("tick timestamp is too far in the future")

type Config struct {
	Interval time.Duration `yaml:"interval"`
	// MaxClockSkew bounds how far ahead of the sampler clock a tick may be stamped.
	MaxClockSkew time.Duration `yaml:"max_clock_skew"`
	// MaxCatchUp caps the synthetic windows a single flush may emit for one symbol.
	MaxCatchUp int              `yaml:"max_catch_up"`
	Now        func() time.Time `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}

	if c.MaxClockSkew <= 0 {
		c.MaxClockSkew = time.Minute
	}

	if c.MaxCatchUp <= 0 {
		c.MaxCatchUp = 720
	}

	if c.Now == nil {
		c.Now = time.Now
	}

	return c
}

type Stats struct {
	TicksReceived int64     `json:"ticks_received"`
	TicksRejected int64     `json:"ticks_rejected"`
	LateTicks     int64     `json:"late_ticks"`
	LastTick      time.Time `json:"last_tick"`
	Symbols       int       `json:"symbols"`
}

// Sampler reduces ticks into fixed, wall-clock aligned windows per symbol.
type Sampler struct {
	cfg Config

	mu           sync.RWMutex
	symbols      map[string]*symbolState
	lastBoundary time.Time

	ticksReceived atomic.Int64
	ticksRejected atomic.Int64
	lateTicks     atomic.Int64
	lastTick      atomic.Int64
}

type symbolState struct {
	mu        sync.Mutex
	openStart time.Time
	buckets   map[int64]*accumulator
	lastVWAP  *float64
}

func NewSampler(cfg Config) *Sampler {
	return &Sampler{
		cfg:     cfg.withDefaults(),
		symbols: make(map[string]*symbolState),
	}
}

func (s *Sampler) Interval() time.Duration {
	return s.cfg.Interval
}

// Ingest adds a tick to the open interval it falls into. Ticks stamped before the
// symbol's open interval are folded into it.
func (s *Sampler) Ingest(tick models.Tick) error {
	if err := tick.Validate(); err != nil {
		s.ticksRejected.Add(1)
		return fmt.Errorf("sampler.Ingest: %w", err)
	}

	if tick.Timestamp.After(s.cfg.Now().Add(s.cfg.MaxClockSkew)) {
		s.ticksRejected.Add(1)
		return fmt.Errorf("sampler.Ingest: %s at %s: %w", tick.Symbol, tick.Timestamp, FutureTickErr)
	}

	bucketStart := tick.Timestamp.Truncate(s.cfg.Interval)
	state := s.stateFor(tick.Symbol, bucketStart)

	state.mu.Lock()
	if bucketStart.Before(state.openStart) {
		bucketStart = state.openStart
		s.lateTicks.Add(1)
	}

	key := bucketStart.UnixNano()
	acc, ok := state.buckets[key]
	if !ok {
		acc = &accumulator{start: bucketStart}
		state.buckets[key] = acc
	}
	acc.add(tick.Price, tick.Quantity)
	state.mu.Unlock()

	s.ticksReceived.Add(1)
	s.recordLastTick(tick.Timestamp)
	return nil
}

func (s *Sampler) recordLastTick(ts time.Time) {
	n := ts.UnixNano()
	for {
		prev := s.lastTick.Load()
		if n <= prev || s.lastTick.CompareAndSwap(prev, n) {
			return
		}
	}
}

func (s *Sampler) stateFor(symbol string, bucketStart time.Time) *symbolState {
	s.mu.RLock()
	state, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if ok {
		return state
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok = s.symbols[symbol]; ok {
		return state
	}

	start := bucketStart
	if start.Before(s.lastBoundary) {
		start = s.lastBoundary
	}

	state = &symbolState{
		openStart: start,
		buckets:   make(map[int64]*accumulator),
	}
	s.symbols[symbol] = state

	log.WithField("symbol", symbol).Infof("tracking new symbol from %s", start.Format(time.RFC3339))
	return state
}

// Flush closes every interval of symbol that ends at or before now truncated to the
// sampling interval.
func (s *Sampler) Flush(symbol string, now time.Time) []models.Window {
	s.mu.RLock()
	state, ok := s.symbols[symbol]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	return s.flushState(symbol, state, now.Truncate(s.cfg.Interval))
}

// FlushAll closes intervals for every tracked symbol at the same boundary. The result
// is ordered by window end, then symbol.
func (s *Sampler) FlushAll(now time.Time) []models.Window {
	boundary := now.Truncate(s.cfg.Interval)

	s.mu.Lock()
	if boundary.After(s.lastBoundary) {
		s.lastBoundary = boundary
	}
	symbols := make([]string, 0, len(s.symbols))
	states := make(map[string]*symbolState, len(s.symbols))
	for sym, state := range s.symbols {
		symbols = append(symbols, sym)
		states[sym] = state
	}
	s.mu.Unlock()

	sort.Strings(symbols)

	var out []models.Window
	for _, sym := range symbols {
		out = append(out, s.flushState(sym, states[sym], boundary)...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WindowEnd.Before(out[j].WindowEnd)
	})

	return out
}

func (s *Sampler) flushState(symbol string, state *symbolState, boundary time.Time) []models.Window {
	state.mu.Lock()
	defer state.mu.Unlock()

	gap := int(boundary.Sub(state.openStart) / s.cfg.Interval)
	if gap <= 0 {
		return nil
	}

	if gap > s.cfg.MaxCatchUp {
		skipTo := boundary.Add(-time.Duration(s.cfg.MaxCatchUp) * s.cfg.Interval)
		log.WithField("symbol", symbol).Warnf("skipping %d empty intervals before %s", gap-s.cfg.MaxCatchUp, skipTo.Format(time.RFC3339))

		// keep any ticks from skipped intervals in the first interval still emitted
		for key, acc := range state.buckets {
			if acc.start.Before(skipTo) {
				delete(state.buckets, key)
				acc.start = skipTo
				if existing, ok := state.buckets[skipTo.UnixNano()]; ok {
					existing.merge(acc)
				} else {
					state.buckets[skipTo.UnixNano()] = acc
				}
			}
		}

		state.openStart = skipTo
	}

	var out []models.Window
	for start := state.openStart; !start.Add(s.cfg.Interval).After(boundary); start = start.Add(s.cfg.Interval) {
		key := start.UnixNano()
		acc, ok := state.buckets[key]
		delete(state.buckets, key)

		end := start.Add(s.cfg.Interval)
		if ok && acc.count > 0 {
			w := acc.window(symbol, end)
			vwap := w.VWAP
			state.lastVWAP = &vwap
			out = append(out, w)
			continue
		}

		if state.lastVWAP == nil {
			continue
		}

		prev := *state.lastVWAP
		out = append(out, models.Window{
			Symbol:      symbol,
			WindowStart: start,
			WindowEnd:   end,
			VWAP:        prev,
			Low:         prev,
			High:        prev,
			Synthetic:   true,
		})
	}

	state.openStart = boundary
	return out
}

func (s *Sampler) Stats() Stats {
	s.mu.RLock()
	n := len(s.symbols)
	s.mu.RUnlock()

	var last time.Time
	if ns := s.lastTick.Load(); ns > 0 {
		last = time.Unix(0, ns).UTC()
	}

	return Stats{
		TicksReceived: s.ticksReceived.Load(),
		TicksRejected: s.ticksRejected.Load(),
		LateTicks:     s.lateTicks.Load(),
		LastTick:      last,
		Symbols:       n,
	}
}

type accumulator struct {
	start    time.Time
	notional float64
	volume   float64
	count    int
	low      float64
	high     float64
}

func (a *accumulator) add(price, qty float64) {
	if a.count == 0 {
		a.low, a.high = price, price
	} else {
		a.low = math.Min(a.low, price)
		a.high = math.Max(a.high, price)
	}

	a.notional += price * qty
	a.volume += qty
	a.count++
}

func (a *accumulator) merge(other *accumulator) {
	if other.count == 0 {
		return
	}

	if a.count == 0 {
		a.low, a.high = other.low, other.high
	} else {
		a.low = math.Min(a.low, other.low)
		a.high = math.Max(a.high, other.high)
	}

	a.notional += other.notional
	a.volume += other.volume
	a.count += other.count
}

func (a *accumulator) window(symbol string, end time.Time) models.Window {
	return models.Window{
		Symbol:      symbol,
		WindowStart: a.start,
		WindowEnd:   end,
		VWAP:        a.notional / a.volume,
		Volume:      a.volume,
		TickCount:   a.count,
		Low:         a.low,
		High:        a.high,
	}
}
