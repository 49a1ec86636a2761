package analytics

type Config struct {
	HistoryCapacity       int     `yaml:"history_capacity"`
	Lookback              int     `yaml:"lookback"`
	RsiPeriod             int     `yaml:"rsi_period"`
	VolatilitySample      int     `yaml:"volatility_sample"`
	GarchMinSamples       int     `yaml:"garch_min_samples"`
	GarchMaxIterations    int     `yaml:"garch_max_iterations"`
	CorrelationLookback   int     `yaml:"correlation_lookback"`
	CorrelationMinSamples int     `yaml:"correlation_min_samples"`
	ClusterThreshold      float64 `yaml:"cluster_threshold"`
	AdfSample             int     `yaml:"adf_sample"`
	AdfMinSamples         int     `yaml:"adf_min_samples"`
	AdfLags               int     `yaml:"adf_lags"`
	TrendBand             float64 `yaml:"trend_band"`
}

func DefaultConfig() Config {
	return Config{
		HistoryCapacity:       200,
		Lookback:              20,
		RsiPeriod:             14,
		VolatilitySample:      100,
		GarchMinSamples:       20,
		GarchMaxIterations:    500,
		CorrelationLookback:   100,
		CorrelationMinSamples: 10,
		ClusterThreshold:      0.7,
		AdfSample:             100,
		AdfMinSamples:         30,
		AdfLags:               1,
		TrendBand:             0.0005,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	setInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}

	setInt(&c.HistoryCapacity, d.HistoryCapacity)
	setInt(&c.Lookback, d.Lookback)
	setInt(&c.RsiPeriod, d.RsiPeriod)
	setInt(&c.VolatilitySample, d.VolatilitySample)
	setInt(&c.GarchMinSamples, d.GarchMinSamples)
	setInt(&c.GarchMaxIterations, d.GarchMaxIterations)
	setInt(&c.CorrelationLookback, d.CorrelationLookback)
	setInt(&c.CorrelationMinSamples, d.CorrelationMinSamples)
	setInt(&c.AdfSample, d.AdfSample)
	setInt(&c.AdfMinSamples, d.AdfMinSamples)

	if c.AdfLags < 0 {
		c.AdfLags = d.AdfLags
	}

	if c.ClusterThreshold <= 0 {
		c.ClusterThreshold = d.ClusterThreshold
	}

	if c.TrendBand <= 0 {
		c.TrendBand = d.TrendBand
	}

	return c
}

// capacity is the ring buffer size: at least as long as the longest lookback.
func (c Config) capacity() int {
	n := c.HistoryCapacity
	for _, lb := range []int{c.Lookback, c.RsiPeriod + 1, c.VolatilitySample + 1, c.CorrelationLookback + 1, c.AdfSample} {
		if lb > n {
			n = lb
		}
	}

	return n
}
