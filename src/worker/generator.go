package worker

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/tick-analytics/src/models"
)

type GeneratorConfig struct {
	Symbols    []string         `yaml:"symbols"`
	Interval   time.Duration    `yaml:"interval"`
	StartPrice float64          `yaml:"start_price"`
	Volatility float64          `yaml:"volatility"`
	Seed       int64            `yaml:"seed"`
	Now        func() time.Time `yaml:"-"`
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.Interval <= 0 {
		c.Interval = 100 * time.Millisecond
	}

	if c.StartPrice <= 0 {
		c.StartPrice = 100
	}

	if c.Volatility <= 0 {
		c.Volatility = 0.001
	}

	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}

	if c.Now == nil {
		c.Now = time.Now
	}

	return c
}

// GeneratorSource emits a geometric random walk per symbol for offline runs.
type GeneratorSource struct {
	cfg     GeneratorConfig
	rnd     *rand.Rand
	prices  map[string]float64
	running atomic.Bool
}

func NewGeneratorSource(cfg GeneratorConfig) *GeneratorSource {
	cfg = cfg.withDefaults()

	prices := make(map[string]float64, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		prices[sym] = cfg.StartPrice
	}

	return &GeneratorSource{
		cfg:    cfg,
		rnd:    rand.New(rand.NewSource(cfg.Seed)),
		prices: prices,
	}
}

func (g *GeneratorSource) Connected() bool {
	return g.running.Load()
}

func (g *GeneratorSource) Start(ctx context.Context) <-chan models.Tick {
	out := make(chan models.Tick, len(g.cfg.Symbols))

	go func() {
		defer close(out)
		g.running.Store(true)
		defer g.running.Store(false)

		log.Infof("generating ticks for %v every %s", g.cfg.Symbols, g.cfg.Interval)

		ticker := time.NewTicker(g.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, sym := range g.cfg.Symbols {
					select {
					case out <- g.next(sym):
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out
}

func (g *GeneratorSource) next(symbol string) models.Tick {
	price := g.prices[symbol] * math.Exp(g.cfg.Volatility*g.rnd.NormFloat64())
	g.prices[symbol] = price

	return models.Tick{
		Symbol:    symbol,
		Timestamp: g.cfg.Now().UTC(),
		Price:     price,
		Quantity:  0.01 + g.rnd.Float64(),
	}
}
