package analytics

import (
	"fmt"

	"github.com/jiaming2012/tick-analytics/src/models"
)

// Latest returns the most recent snapshot published for symbol.
func (e *Engine) Latest(symbol string) (*models.MetricsSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap, ok := e.latest[symbol]
	return snap, ok
}

// LatestAll returns the most recent snapshot of every symbol, ordered by symbol.
func (e *Engine) LatestAll() []*models.MetricsSnapshot {
	symbols := e.Symbols()

	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*models.MetricsSnapshot, 0, len(symbols))
	for _, s := range symbols {
		if snap, ok := e.latest[s]; ok {
			out = append(out, snap)
		}
	}

	return out
}

func (e *Engine) CorrelationMatrix() models.CorrelationMatrix {
	e.crossMu.RLock()
	defer e.crossMu.RUnlock()

	out := models.CorrelationMatrix{
		Timestamp:    e.correlationsAsOf,
		Correlations: make(map[string]float64, len(e.correlations)),
	}

	for pair, c := range e.correlations {
		out.Correlations[pair.String()] = c
	}

	return out
}

func (e *Engine) Clusters() models.Clusters {
	e.crossMu.RLock()
	defer e.crossMu.RUnlock()

	out := models.Clusters{
		Timestamp: e.clustersAsOf,
		Clusters:  make([][]string, 0, len(e.clusters)),
	}

	for _, g := range e.clusters {
		out.Clusters = append(out.Clusters, append([]string(nil), g...))
	}

	return out
}

// PriceHistory returns up to n of the newest VWAPs, oldest first.
func (e *Engine) PriceHistory(symbol string, n int) (models.PriceHistory, error) {
	e.mu.RLock()
	series, ok := e.series[symbol]
	e.mu.RUnlock()
	if !ok {
		return models.PriceHistory{}, fmt.Errorf("analytics.PriceHistory: %s: %w", symbol, models.InsufficientDataErr)
	}

	prices := series.priceHistory(n)
	return models.PriceHistory{
		Symbol: symbol,
		Count:  len(prices),
		Prices: prices,
	}, nil
}

// Windows returns the retained window history of symbol, oldest first.
func (e *Engine) Windows(symbol string) []models.Window {
	e.mu.RLock()
	series, ok := e.series[symbol]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	return series.windowHistory()
}
