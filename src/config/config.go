package config

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/jiaming2012/tick-analytics/src/alerts"
	"github.com/jiaming2012/tick-analytics/src/analytics"
	"github.com/jiaming2012/tick-analytics/src/backtester"
	"github.com/jiaming2012/tick-analytics/src/notifier"
	"github.com/jiaming2012/tick-analytics/src/persistence"
	"github.com/jiaming2012/tick-analytics/src/pipeline"
	"github.com/jiaming2012/tick-analytics/src/sampler"
	"github.com/jiaming2012/tick-analytics/src/utils"
	"github.com/jiaming2012/tick-analytics/src/worker"
)

const (
	FeedBinance   = "binance"
	FeedGenerator = "generator"
)

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type FeedConfig struct {
	Source    string                 `yaml:"source"`
	Symbols   []string               `yaml:"symbols"`
	Binance   worker.BinanceConfig   `yaml:"binance"`
	Generator worker.GeneratorConfig `yaml:"generator"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	LogLevel string `yaml:"log_level"`
}

type Config struct {
	HTTP      HTTPConfig                `yaml:"http"`
	Log       utils.LogConfig           `yaml:"log"`
	Telemetry TelemetryConfig           `yaml:"telemetry"`
	Feed      FeedConfig                `yaml:"feed"`
	Sampler   sampler.Config            `yaml:"sampler"`
	Analytics analytics.Config          `yaml:"analytics"`
	Alerts    alerts.EvaluatorConfig    `yaml:"alerts"`
	Backtest  backtester.Config         `yaml:"backtest"`
	Database  DatabaseConfig            `yaml:"database"`
	Gateway   persistence.GatewayConfig `yaml:"gateway"`
	Cache     persistence.CacheConfig   `yaml:"cache"`
	Kafka     notifier.KafkaConfig      `yaml:"kafka"`
	Scheduler pipeline.SchedulerConfig  `yaml:"scheduler"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		Log: utils.LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Telemetry: TelemetryConfig{ServiceName: "tick-analytics"},
		Feed: FeedConfig{
			Source:  FeedBinance,
			Symbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		},
		Analytics: analytics.DefaultConfig(),
		Backtest:  backtester.DefaultConfig(),
		Database:  DatabaseConfig{LogLevel: "warn"},
		Scheduler: pipeline.DefaultSchedulerConfig(),
	}
}

// Load reads path over the defaults, then applies ANALYTICS_* environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: failed to parse %s: %w", path, err)
		}

		log.Infof("loaded config from %s", path)
	}

	cfg.applyEnv()
	cfg.Analytics = cfg.Analytics.WithDefaults()
	cfg.Scheduler = cfg.Scheduler.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, err := utils.GetEnv("ANALYTICS_DATABASE_DSN"); err == nil {
		c.Database.DSN = v
	}

	if v, err := utils.GetEnv("ANALYTICS_REDIS_ADDR"); err == nil {
		c.Cache.Addr = v
	}

	if v, err := utils.GetEnv("ANALYTICS_REDIS_PASSWORD"); err == nil {
		c.Cache.Password = v
	}

	if v, err := utils.GetEnv("ANALYTICS_KAFKA_BROKERS"); err == nil {
		c.Kafka.Brokers = splitList(v)
	}

	if v, err := utils.GetEnv("ANALYTICS_HTTP_ADDR"); err == nil {
		c.HTTP.Addr = v
	}

	if v, err := utils.GetEnv("ANALYTICS_FEED_SOURCE"); err == nil {
		c.Feed.Source = v
	}

	if v, err := utils.GetEnv("ANALYTICS_SYMBOLS"); err == nil {
		c.Feed.Symbols = splitList(v)
	}

	if v, err := utils.GetEnv("LOG_LEVEL"); err == nil {
		c.Log.Level = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Feed.Source != FeedBinance && c.Feed.Source != FeedGenerator {
		return fmt.Errorf("feed.source must be %q or %q, got %q", FeedBinance, FeedGenerator, c.Feed.Source)
	}

	if len(c.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols must not be empty")
	}

	for i, sym := range c.Feed.Symbols {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("feed.symbols[%d] is empty", i)
		}
		c.Feed.Symbols[i] = strings.ToUpper(strings.TrimSpace(sym))
	}

	if c.Sampler.Interval < 0 {
		return fmt.Errorf("sampler.interval must be positive")
	}

	if c.Analytics.ClusterThreshold > 1 {
		return fmt.Errorf("analytics.cluster_threshold must be in (0, 1], got %v", c.Analytics.ClusterThreshold)
	}

	if c.Backtest.EntryZ < 0 || c.Backtest.ExitBand < 0 {
		return fmt.Errorf("backtest thresholds must not be negative")
	}

	if c.Backtest.ExitBand >= c.Backtest.EntryZ && c.Backtest.EntryZ > 0 {
		return fmt.Errorf("backtest.exit_band (%v) must be below backtest.entry_z (%v)", c.Backtest.ExitBand, c.Backtest.EntryZ)
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must not be empty")
	}

	return nil
}

// Binance returns the feed adapter config with the top-level symbol list.
func (c *Config) Binance() worker.BinanceConfig {
	b := c.Feed.Binance
	b.Symbols = c.Feed.Symbols
	return b
}

func (c *Config) Generator() worker.GeneratorConfig {
	g := c.Feed.Generator
	g.Symbols = c.Feed.Symbols
	return g
}
