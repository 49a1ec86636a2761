package indicators

import (
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"
)

// TimedValue is a value observed at a window boundary.
type TimedValue struct {
	Timestamp time.Time
	Value     float64
}

// Pearson returns the correlation of x and y, or an error when either series is
// constant or the lengths differ.
func Pearson(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("pearson: series lengths differ: %d != %d", len(x), len(y))
	}

	if len(x) < 2 {
		return 0, fmt.Errorf("pearson: need at least 2 points, got %d", len(x))
	}

	for _, series := range [][]float64{x, y} {
		mean, _ := stats.Mean(series)
		sd, err := stats.StandardDeviationPopulation(series)
		if err != nil {
			return 0, fmt.Errorf("pearson: %w", err)
		}

		if isZeroVariance(sd, mean) {
			return 0, fmt.Errorf("pearson: zero variance series")
		}
	}

	corr, err := stats.Pearson(x, y)
	if err != nil {
		return 0, fmt.Errorf("pearson: %w", err)
	}

	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		return 0, fmt.Errorf("pearson: non-finite result")
	}

	return math.Max(-1, math.Min(1, corr)), nil
}

// AlignByTimestamp pairs the newest values of a and b that share a timestamp, keeping
// at most limit pairs, oldest first. Both inputs must be ordered by timestamp.
func AlignByTimestamp(a, b []TimedValue, limit int) ([]float64, []float64) {
	index := make(map[int64]float64, len(b))
	for _, v := range b {
		index[v.Timestamp.UnixNano()] = v.Value
	}

	var xs, ys []float64
	for i := len(a) - 1; i >= 0 && (limit <= 0 || len(xs) < limit); i-- {
		other, ok := index[a[i].Timestamp.UnixNano()]
		if !ok {
			continue
		}

		xs = append(xs, a[i].Value)
		ys = append(ys, other)
	}

	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
		ys[i], ys[j] = ys[j], ys[i]
	}

	return xs, ys
}
