package models

import "time"

type Trend string

const (
	TrendUp      Trend = "uptrend"
	TrendDown    Trend = "downtrend"
	TrendNeutral Trend = "neutral"
)

// MetricsSnapshot is published once per closed window and never mutated afterwards.
// Nil fields did not have enough history behind them.
type MetricsSnapshot struct {
	Symbol             string             `json:"symbol"`
	Timestamp          time.Time          `json:"timestamp"`
	Price              float64            `json:"price"`
	Mean               *float64           `json:"mean"`
	Std                *float64           `json:"std"`
	ZScore             *float64           `json:"zscore"`
	SMA                *float64           `json:"sma"`
	EMA                *float64           `json:"ema"`
	RSI                *float64           `json:"rsi"`
	Volatility         *float64           `json:"volatility"`
	VolatilityFallback bool               `json:"volatility_fallback"`
	Correlation        map[string]float64 `json:"correlation"`
	ADFPValue          *float64           `json:"adf_pvalue"`
	ClusterID          *int               `json:"cluster_id"`
	Trend              *Trend             `json:"trend"`
}

// Float returns a pointer to a copy of v.
func Float(v float64) *float64 {
	return &v
}
