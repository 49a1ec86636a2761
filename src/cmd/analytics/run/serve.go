package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jiaming2012/tick-analytics/src/alerts"
	"github.com/jiaming2012/tick-analytics/src/analytics"
	"github.com/jiaming2012/tick-analytics/src/backtester"
	"github.com/jiaming2012/tick-analytics/src/config"
	"github.com/jiaming2012/tick-analytics/src/eventpubsub"
	"github.com/jiaming2012/tick-analytics/src/notifier"
	"github.com/jiaming2012/tick-analytics/src/persistence"
	"github.com/jiaming2012/tick-analytics/src/pipeline"
	"github.com/jiaming2012/tick-analytics/src/router"
	"github.com/jiaming2012/tick-analytics/src/sampler"
	"github.com/jiaming2012/tick-analytics/src/telemetry"
	"github.com/jiaming2012/tick-analytics/src/worker"
)

const shutdownTimeout = 10 * time.Second

type stores struct {
	store persistence.Store
	rules alerts.RuleStore
}

// openStores uses postgres when a DSN is configured and in-memory storage otherwise.
func openStores(cfg *config.Config) (*stores, error) {
	if cfg.Database.DSN == "" {
		log.Warn("no database configured, using in-memory storage")
		return &stores{
			store: persistence.NewMemoryStore(),
			rules: alerts.NewMemoryRuleStore(),
		}, nil
	}

	pg, err := persistence.NewPostgresStore(cfg.Database.DSN, cfg.Database.LogLevel)
	if err != nil {
		return nil, err
	}

	return &stores{store: pg, rules: pg}, nil
}

func newSource(cfg *config.Config) worker.TickSource {
	if cfg.Feed.Source == config.FeedGenerator {
		return worker.NewGeneratorSource(cfg.Generator())
	}

	return worker.NewBinanceSource(cfg.Binance())
}

// Serve runs the live pipeline and the HTTP read surface until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config) error {
	if cfg.Telemetry.Enabled {
		otelShutdown, err := telemetry.SetupOTelSDK(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return fmt.Errorf("serve: failed to setup telemetry: %w", err)
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Errorf("telemetry shutdown: %v", err)
			}
		}()
	}

	eventpubsub.Init()

	st, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer st.store.Close()

	gateway := persistence.NewGateway(st.store, cfg.Gateway)

	var cache pipeline.SnapshotCache
	if cfg.Cache.Addr != "" {
		c, err := persistence.NewSnapshotCache(ctx, cfg.Cache)
		if err != nil {
			log.Warnf("snapshot cache disabled: %v", err)
		} else {
			cache = c
			defer c.Close()
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		n := notifier.NewKafkaNotifier(cfg.Kafka)
		if err := n.Subscribe(); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		defer n.Close()
	}

	evaluator := alerts.NewEvaluator(st.rules, cfg.Alerts)
	if err := evaluator.Refresh(ctx); err != nil {
		return fmt.Errorf("serve: failed to load alert rules: %w", err)
	}

	engine := analytics.NewEngine(cfg.Analytics)
	source := newSource(cfg)

	p := pipeline.NewPipeline(pipeline.Options{
		Source:    source,
		Sampler:   sampler.NewSampler(cfg.Sampler),
		Engine:    engine,
		Evaluator: evaluator,
		Gateway:   gateway,
		Cache:     cache,
	})

	scheduler := pipeline.NewScheduler()
	pipeline.RegisterJobs(scheduler, cfg.Scheduler, engine, evaluator, st.store, nil)

	r := mux.NewRouter()
	router.SetupHandler(r, &router.Handler{
		Analytics: engine,
		Status:    p,
		Rules:     alerts.NewService(st.rules, evaluator),
		Backtests: backtester.NewService(st.store, backtester.NewEngine(cfg.Backtest)),
		Snapshots: st.store,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		gateway.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return p.Run(gctx)
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	g.Go(func() error {
		log.Infof("listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("http shutdown: %v", err)
		}
		return nil
	})

	err = g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	gateway.Drain(drainCtx)
	eventpubsub.Wait()

	stats := gateway.Stats()
	log.Infof("shutdown complete: %d writes, %d dropped, %d failed", stats.Written, stats.Dropped, stats.Failed)

	return err
}
