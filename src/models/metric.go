package models

import (
	"fmt"
	"strings"
)

// Metric names a scalar field of a MetricsSnapshot that alert rules can watch.
type Metric int

const (
	MetricPrice Metric = iota + 1
	MetricMean
	MetricStd
	MetricZScore
	MetricSMA
	MetricEMA
	MetricRSI
	MetricVolatility
	MetricADFPValue
)

var metricNames = map[Metric]string{
	MetricPrice:      "price",
	MetricMean:       "mean",
	MetricStd:        "std",
	MetricZScore:     "zscore",
	MetricSMA:        "sma",
	MetricEMA:        "ema",
	MetricRSI:        "rsi",
	MetricVolatility: "volatility",
	MetricADFPValue:  "adf_pvalue",
}

var metricAliases = map[string]Metric{
	"z_score":      MetricZScore,
	"sma_20":       MetricSMA,
	"ema_20":       MetricEMA,
	"mean_price":   MetricPrice,
	"vwap":         MetricPrice,
	"garch":        MetricVolatility,
	"adf":          MetricADFPValue,
	"std_price":    MetricStd,
	"garch_vol":    MetricVolatility,
	"adf_p_value":  MetricADFPValue,
	"stationarity": MetricADFPValue,
}

func ParseMetric(s string) (Metric, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for m, n := range metricNames {
		if n == name {
			return m, nil
		}
	}

	if m, ok := metricAliases[name]; ok {
		return m, nil
	}

	return 0, fmt.Errorf("%w: %q", UnknownMetricErr, s)
}

func (m Metric) String() string {
	if n, ok := metricNames[m]; ok {
		return n
	}

	return fmt.Sprintf("metric(%d)", int(m))
}

// Value reads the metric from the snapshot. ok is false when the field is null.
func (m Metric) Value(s *MetricsSnapshot) (float64, bool) {
	if s == nil {
		return 0, false
	}

	var v *float64
	switch m {
	case MetricPrice:
		return s.Price, true
	case MetricMean:
		v = s.Mean
	case MetricStd:
		v = s.Std
	case MetricZScore:
		v = s.ZScore
	case MetricSMA:
		v = s.SMA
	case MetricEMA:
		v = s.EMA
	case MetricRSI:
		v = s.RSI
	case MetricVolatility:
		v = s.Volatility
	case MetricADFPValue:
		v = s.ADFPValue
	}

	if v == nil {
		return 0, false
	}

	return *v, true
}

func (m Metric) MarshalText() ([]byte, error) {
	if _, ok := metricNames[m]; !ok {
		return nil, fmt.Errorf("%w: %d", UnknownMetricErr, int(m))
	}

	return []byte(m.String()), nil
}

func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}

	*m = parsed
	return nil
}
