package indicators

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// zeroVarianceTolerance treats a standard deviation this small relative to the mean as zero.
const zeroVarianceTolerance = 1e-12

type RollingStats struct {
	Mean float64
	Std  float64
}

// NewRollingStats computes the mean and unbiased sample standard deviation of values.
func NewRollingStats(values []float64) (RollingStats, error) {
	if len(values) < 2 {
		return RollingStats{}, fmt.Errorf("rolling stats: need at least 2 values, got %d", len(values))
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return RollingStats{}, fmt.Errorf("failed to calculate mean: %w", err)
	}

	sd, err := stats.StandardDeviationSample(values)
	if err != nil {
		return RollingStats{}, fmt.Errorf("failed to calculate the standard deviation: %w", err)
	}

	if isZeroVariance(sd, mean) {
		sd = 0
	}

	return RollingStats{Mean: mean, Std: sd}, nil
}

// ZScore returns nil when the standard deviation is zero.
func (s RollingStats) ZScore(value float64) *float64 {
	if s.Std == 0 {
		return nil
	}

	z := (value - s.Mean) / s.Std
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return nil
	}

	return &z
}

func isZeroVariance(sd, mean float64) bool {
	if math.IsNaN(sd) {
		return true
	}

	return sd <= zeroVarianceTolerance*math.Max(1, math.Abs(mean))
}

// SimpleReturns converts a price series into period-over-period simple returns.
func SimpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}

	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}

		out = append(out, (prices[i]-prev)/prev)
	}

	return out
}

// ZScoreSeries computes a rolling z-score for each point using the previous lookback
// values plus the point itself. Points without a full lookback, or with zero variance, are nil.
func ZScoreSeries(prices []float64, lookback int) []*float64 {
	out := make([]*float64, len(prices))
	if lookback < 2 {
		return out
	}

	for i := lookback - 1; i < len(prices); i++ {
		rs, err := NewRollingStats(prices[i-lookback+1 : i+1])
		if err != nil {
			continue
		}

		out[i] = rs.ZScore(prices[i])
	}

	return out
}
