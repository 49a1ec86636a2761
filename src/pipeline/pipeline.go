package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jiaming2012/tick-analytics/src/alerts"
	"github.com/jiaming2012/tick-analytics/src/analytics"
	"github.com/jiaming2012/tick-analytics/src/eventpubsub"
	"github.com/jiaming2012/tick-analytics/src/metrics"
	"github.com/jiaming2012/tick-analytics/src/models"
	"github.com/jiaming2012/tick-analytics/src/persistence"
	"github.com/jiaming2012/tick-analytics/src/sampler"
	"github.com/jiaming2012/tick-analytics/src/worker"
)

const publisherName = "pipeline"

type SnapshotCache interface {
	PutSnapshots(ctx context.Context, snapshots []*models.MetricsSnapshot) error
}

type Options struct {
	Source    worker.TickSource
	Sampler   *sampler.Sampler
	Engine    *analytics.Engine
	Evaluator *alerts.Evaluator
	Gateway   *persistence.Gateway
	// Cache is optional.
	Cache SnapshotCache
	Now   func() time.Time
}

// Pipeline moves ticks through sampling, metrics and alerting, and hands every
// product to the persistence gateway.
type Pipeline struct {
	source    worker.TickSource
	sampler   *sampler.Sampler
	engine    *analytics.Engine
	evaluator *alerts.Evaluator
	gateway   *persistence.Gateway
	cache     SnapshotCache
	now       func() time.Time
	startedAt time.Time
	tracer    trace.Tracer
}

func NewPipeline(opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Pipeline{
		source:    opts.Source,
		sampler:   opts.Sampler,
		engine:    opts.Engine,
		evaluator: opts.Evaluator,
		gateway:   opts.Gateway,
		cache:     opts.Cache,
		now:       opts.Now,
		startedAt: opts.Now(),
		tracer:    otel.Tracer("pipeline"),
	}
}

// Run consumes the tick source and flushes on every interval boundary until ctx is
// cancelled. The flush loop keeps running if the source stops.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	ticks := p.source.Start(ctx)
	g.Go(func() error {
		for tick := range ticks {
			p.Ingest(tick)
		}

		log.Warn("tick source closed")
		return nil
	})

	g.Go(func() error {
		return p.flushLoop(ctx)
	})

	return g.Wait()
}

func (p *Pipeline) Ingest(tick models.Tick) {
	if err := p.sampler.Ingest(tick); err != nil {
		metrics.TicksRejectedTotal.Inc()
		log.Debugf("rejected tick: %v", err)
		return
	}

	metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
}

func (p *Pipeline) flushLoop(ctx context.Context) error {
	interval := p.sampler.Interval()
	for {
		now := p.now()
		next := now.Truncate(interval).Add(interval)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if _, _, err := p.ProcessBoundary(ctx, next); err != nil {
			log.Errorf("failed to process boundary %s: %v", next.Format(time.RFC3339), err)
		}
	}
}

// ProcessBoundary closes every interval ending at or before now and runs the closed
// windows through the engine and the evaluator.
func (p *Pipeline) ProcessBoundary(ctx context.Context, now time.Time) ([]*models.MetricsSnapshot, []models.AlertTrigger, error) {
	start := time.Now()

	windows := p.sampler.FlushAll(now)
	if len(windows) == 0 {
		return nil, nil, nil
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.ProcessBoundary", trace.WithAttributes(
		attribute.String("boundary", now.Truncate(p.sampler.Interval()).Format(time.RFC3339)),
		attribute.Int("windows", len(windows)),
	))
	defer span.End()

	for _, w := range windows {
		metrics.WindowsTotal.WithLabelValues(w.Symbol, strconv.FormatBool(w.Synthetic)).Inc()
	}

	p.gateway.SaveWindows(windows)
	eventpubsub.Publish(publisherName, eventpubsub.WindowsClosedEvent, models.WindowsClosedEvent{Ctx: ctx, Windows: windows})

	snapshots, err := p.engine.ProcessBoundary(ctx, windows)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline.ProcessBoundary: %w", err)
	}

	for _, snap := range snapshots {
		if snap.VolatilityFallback {
			metrics.VolatilityFallbackTotal.WithLabelValues(snap.Symbol).Inc()
		}
	}

	if p.cache != nil {
		if err := p.cache.PutSnapshots(ctx, snapshots); err != nil {
			log.Warnf("failed to cache snapshots: %v", err)
		}
	}

	p.gateway.SaveSnapshots(snapshots)
	eventpubsub.Publish(publisherName, eventpubsub.SnapshotsPublished, models.SnapshotsPublishedEvent{Ctx: ctx, Snapshots: snapshots})

	var triggers []models.AlertTrigger
	for _, snap := range snapshots {
		triggers = append(triggers, p.evaluator.Evaluate(snap)...)
	}

	if len(triggers) > 0 {
		for _, tr := range triggers {
			metrics.AlertsFiredTotal.WithLabelValues(tr.Symbol, tr.Metric.String()).Inc()
			log.WithFields(log.Fields{
				"symbol": tr.Symbol,
				"metric": tr.Metric.String(),
			}).Infof("alert fired: %v %s %v (observed %v)", tr.Metric, tr.Condition, tr.Threshold, tr.ObservedValue)
		}

		p.gateway.SaveTriggers(triggers)
		eventpubsub.Publish(publisherName, eventpubsub.AlertTriggeredEvent, models.AlertTriggeredEvent{Ctx: ctx, Triggers: triggers})
	}

	metrics.BoundaryDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("snapshots", len(snapshots)), attribute.Int("triggers", len(triggers)))

	return snapshots, triggers, nil
}

func (p *Pipeline) Status() models.FeedStatus {
	stats := p.sampler.Stats()

	status := models.FeedStatus{
		Status:        "disconnected",
		UptimeSeconds: p.now().Sub(p.startedAt).Seconds(),
		TicksReceived: uint64(stats.TicksReceived),
		TicksRejected: uint64(stats.TicksRejected),
	}

	if p.source != nil && p.source.Connected() {
		status.Status = "connected"
	}

	if !stats.LastTick.IsZero() {
		last := stats.LastTick
		status.LastTickTimestamp = &last
	}

	return status
}
