package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jiaming2012/tick-analytics/src/models"
)

type CacheConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	History  int64         `yaml:"history"`
}

// SnapshotCache mirrors the latest snapshot and a short VWAP history per symbol into
// redis for dashboards that do not talk to this process.
type SnapshotCache struct {
	rdb     *redis.Client
	ttl     time.Duration
	history int64
}

func NewSnapshotCache(ctx context.Context, cfg CacheConfig) (*SnapshotCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	history := cfg.History
	if history <= 0 {
		history = 200
	}

	return &SnapshotCache{rdb: rdb, ttl: ttl, history: history}, nil
}

func latestKey(symbol string) string { return fmt.Sprintf("analytics:latest:%s", symbol) }
func pricesKey(symbol string) string { return fmt.Sprintf("analytics:prices:%s", symbol) }

type cachedPrice struct {
	Price float64 `json:"price"`
	Ts    int64   `json:"ts"`
}

func (c *SnapshotCache) PutSnapshots(ctx context.Context, snapshots []*models.MetricsSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	pipe := c.rdb.TxPipeline()
	for _, snap := range snapshots {
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("SnapshotCache.PutSnapshots: %w", err)
		}

		price, _ := json.Marshal(cachedPrice{Price: snap.Price, Ts: snap.Timestamp.UnixNano()})

		pipe.Set(ctx, latestKey(snap.Symbol), payload, c.ttl)
		pipe.ZAdd(ctx, pricesKey(snap.Symbol), redis.Z{Score: float64(snap.Timestamp.UnixMilli()), Member: string(price)})
		pipe.ZRemRangeByRank(ctx, pricesKey(snap.Symbol), 0, -c.history-1)
		pipe.Expire(ctx, pricesKey(snap.Symbol), c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("SnapshotCache.PutSnapshots: %w", err)
	}

	return nil
}

func (c *SnapshotCache) Close() error {
	return c.rdb.Close()
}
