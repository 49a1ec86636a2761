package backtester

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/jiaming2012/tick-analytics/src/indicators"
	"github.com/jiaming2012/tick-analytics/src/models"
)

type Config struct {
	EntryZ   float64 `yaml:"entry_z"`
	ExitBand float64 `yaml:"exit_band"`
	Lookback int     `yaml:"lookback"`
}

func DefaultConfig() Config {
	return Config{
		EntryZ:   2.0,
		ExitBand: 0.1,
		Lookback: 20,
	}
}

// Engine replays a window series through a z-score mean-reversion rule: short when
// z >= EntryZ, long when z <= -EntryZ, and close when z crosses to the other side of
// zero or comes within ExitBand of it. The VWAP of the signalling window is the fill
// price. At most one transition happens per window.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	d := DefaultConfig()
	if cfg.EntryZ <= 0 {
		cfg.EntryZ = d.EntryZ
	}

	if cfg.ExitBand < 0 {
		cfg.ExitBand = d.ExitBand
	}

	if cfg.Lookback < 2 {
		cfg.Lookback = d.Lookback
	}

	return &Engine{cfg: cfg}
}

// RunWindows derives the rolling z-score from the window VWAPs. A series shorter than
// the lookback yields a result without trades.
func (e *Engine) RunWindows(symbol string, windows []models.Window) (*models.BacktestResult, error) {
	if len(windows) < e.cfg.Lookback {
		return newResult(symbol, windows), nil
	}

	prices := make([]float64, len(windows))
	for i, w := range windows {
		prices[i] = w.VWAP
	}

	return e.Run(symbol, windows, indicators.ZScoreSeries(prices, e.cfg.Lookback))
}

// Run is a pure function of its inputs. Nil z-scores are skipped.
func (e *Engine) Run(symbol string, windows []models.Window, zscores []*float64) (*models.BacktestResult, error) {
	if len(windows) != len(zscores) {
		return nil, fmt.Errorf("backtester.Run: %d windows, %d z-scores: %w", len(windows), len(zscores), models.SeriesLengthMismatchErr)
	}

	result := newResult(symbol, windows)
	position := models.PositionFlat
	var open *models.OpenPosition

	total := decimal.Zero
	for i, w := range windows {
		if zscores[i] == nil {
			continue
		}
		z := *zscores[i]
		if math.IsNaN(z) || math.IsInf(z, 0) {
			continue
		}

		switch position {
		case models.PositionFlat:
			switch {
			case z >= e.cfg.EntryZ:
				position = models.PositionShort
				open = &models.OpenPosition{EntryTs: w.WindowEnd, Side: models.SideShort, EntryPrice: w.VWAP, EntryZ: z}
			case z <= -e.cfg.EntryZ:
				position = models.PositionLong
				open = &models.OpenPosition{EntryTs: w.WindowEnd, Side: models.SideLong, EntryPrice: w.VWAP, EntryZ: z}
			}

		case models.PositionLong, models.PositionShort:
			if !e.shouldExit(position, z) {
				continue
			}

			pnl := tradePnL(open.Side, open.EntryPrice, w.VWAP)
			total = total.Add(pnl)

			pnlValue, _ := pnl.Float64()
			result.Trades = append(result.Trades, models.BacktestTrade{
				EntryTs:    open.EntryTs,
				ExitTs:     w.WindowEnd,
				Side:       open.Side,
				EntryPrice: open.EntryPrice,
				ExitPrice:  w.VWAP,
				EntryZ:     open.EntryZ,
				ExitZ:      z,
				PnL:        pnlValue,
			})

			if pnl.IsPositive() {
				result.Wins++
			} else if pnl.IsNegative() {
				result.Losses++
			}

			position = models.PositionFlat
			open = nil
		}
	}

	result.TradeCount = len(result.Trades)
	result.TotalPnL, _ = total.Float64()
	if result.TradeCount > 0 {
		result.WinRate = float64(result.Wins) / float64(result.TradeCount)
		result.AvgPnL, _ = total.Div(decimal.NewFromInt(int64(result.TradeCount))).Float64()
	}
	result.OpenPosition = open

	return result, nil
}

func (e *Engine) shouldExit(position models.Position, z float64) bool {
	if math.Abs(z) <= e.cfg.ExitBand {
		return true
	}

	if position == models.PositionLong {
		return z > 0
	}

	return z < 0
}

func tradePnL(side models.Side, entry, exit float64) decimal.Decimal {
	entryPx := decimal.NewFromFloat(entry)
	exitPx := decimal.NewFromFloat(exit)
	if side == models.SideShort {
		return entryPx.Sub(exitPx)
	}

	return exitPx.Sub(entryPx)
}

func newResult(symbol string, windows []models.Window) *models.BacktestResult {
	result := &models.BacktestResult{
		Symbol:  symbol,
		Windows: len(windows),
		Trades:  []models.BacktestTrade{},
	}

	if len(windows) > 0 {
		result.From = windows[0].WindowStart
		result.To = windows[len(windows)-1].WindowEnd
	}

	return result
}
