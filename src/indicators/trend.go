package indicators

import (
	"math"

	"github.com/jiaming2012/tick-analytics/src/models"
)

// ClassifyTrend labels the series as up when the EMA sits above the SMA by more than
// band (relative), down when below, and neutral otherwise.
func ClassifyTrend(sma, ema *float64, band float64) *models.Trend {
	if sma == nil || ema == nil {
		return nil
	}

	trend := models.TrendNeutral
	diff := *ema - *sma
	scale := math.Max(math.Abs(*sma), 1e-12)
	switch {
	case diff/scale > band:
		trend = models.TrendUp
	case diff/scale < -band:
		trend = models.TrendDown
	}

	return &trend
}
