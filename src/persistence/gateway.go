package persistence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/tick-analytics/src/indicators"
	"github.com/jiaming2012/tick-analytics/src/metrics"
	"github.com/jiaming2012/tick-analytics/src/models"
)

type GatewayConfig struct {
	Backlog      int           `yaml:"backlog"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.Backlog <= 0 {
		c.Backlog = 10000
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}

	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}

	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}

	return c
}

type GatewayStats struct {
	Backlog int   `json:"backlog"`
	Written int64 `json:"written"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

type writeJob struct {
	name string
	fn   func(ctx context.Context) error
}

// Gateway queues writes so that callers never wait on storage. When the backlog is
// full the oldest pending write is dropped. Each write is retried a bounded number
// of times before it is given up.
type Gateway struct {
	store Store
	cfg   GatewayConfig

	mu     sync.Mutex
	queue  *indicators.RingBuffer[writeJob]
	notify chan struct{}

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewGateway(store Store, cfg GatewayConfig) *Gateway {
	cfg = cfg.withDefaults()
	return &Gateway{
		store:  store,
		cfg:    cfg,
		queue:  indicators.NewRingBuffer[writeJob](cfg.Backlog),
		notify: make(chan struct{}, 1),
	}
}

// Submit queues fn without blocking.
func (g *Gateway) Submit(name string, fn func(ctx context.Context) error) {
	g.mu.Lock()
	evicted, didEvict := g.queue.Push(writeJob{name: name, fn: fn})
	backlog := g.queue.Len()
	g.mu.Unlock()

	metrics.PersistenceBacklog.Set(float64(backlog))

	if didEvict {
		g.dropped.Add(1)
		metrics.PersistenceDroppedTotal.WithLabelValues("backlog_full").Inc()
		log.Warnf("persistence backlog full, dropped pending %s write", evicted.name)
	}

	select {
	case g.notify <- struct{}{}:
	default:
	}
}

func (g *Gateway) SaveWindows(windows []models.Window) {
	if len(windows) == 0 {
		return
	}

	g.Submit("windows", func(ctx context.Context) error {
		return g.store.AppendWindows(ctx, windows)
	})
}

func (g *Gateway) SaveSnapshots(snapshots []*models.MetricsSnapshot) {
	if len(snapshots) == 0 {
		return
	}

	g.Submit("snapshots", func(ctx context.Context) error {
		return g.store.AppendSnapshots(ctx, snapshots)
	})
}

func (g *Gateway) SaveTriggers(triggers []models.AlertTrigger) {
	if len(triggers) == 0 {
		return
	}

	g.Submit("triggers", func(ctx context.Context) error {
		return g.store.AppendTriggers(ctx, triggers)
	})
}

// Run drains the queue until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	for {
		job, ok := g.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-g.notify:
				continue
			}
		}

		g.execute(ctx, job)
	}
}

// Drain writes everything still queued, giving up when ctx is done.
func (g *Gateway) Drain(ctx context.Context) {
	for ctx.Err() == nil {
		job, ok := g.next()
		if !ok {
			return
		}
		g.execute(ctx, job)
	}
}

func (g *Gateway) next() (writeJob, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	job, ok := g.queue.Pop()
	metrics.PersistenceBacklog.Set(float64(g.queue.Len()))
	return job, ok
}

func (g *Gateway) execute(ctx context.Context, job writeJob) {
	backoff := g.cfg.RetryBackoff
	for attempt := 1; ; attempt++ {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.WriteTimeout)
		err := job.fn(writeCtx)
		cancel()

		if err == nil {
			g.written.Add(1)
			return
		}

		if attempt >= g.cfg.MaxAttempts {
			g.failed.Add(1)
			metrics.PersistenceDroppedTotal.WithLabelValues("retries_exhausted").Inc()
			log.Errorf("persistence: giving up on %s write after %d attempts: %v", job.name, attempt, err)
			return
		}

		log.Warnf("persistence: %s write failed (attempt %d/%d): %v", job.name, attempt, g.cfg.MaxAttempts, err)

		select {
		case <-ctx.Done():
			g.failed.Add(1)
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (g *Gateway) Stats() GatewayStats {
	g.mu.Lock()
	backlog := g.queue.Len()
	g.mu.Unlock()

	return GatewayStats{
		Backlog: backlog,
		Written: g.written.Load(),
		Dropped: g.dropped.Load(),
		Failed:  g.failed.Load(),
	}
}
