package pipeline

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jiaming2012/tick-analytics/src/alerts"
	"github.com/jiaming2012/tick-analytics/src/analytics"
	"github.com/jiaming2012/tick-analytics/src/persistence"
)

type SchedulerConfig struct {
	RuleRefresh     time.Duration `yaml:"rule_refresh"`
	Stationarity    time.Duration `yaml:"stationarity"`
	VolatilityRefit time.Duration `yaml:"volatility_refit"`
	Prune           time.Duration `yaml:"prune"`
	RetentionDays   int           `yaml:"retention_days"`
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		RuleRefresh:     5 * time.Second,
		Stationarity:    time.Minute,
		VolatilityRefit: 5 * time.Minute,
		Prune:           time.Hour,
		RetentionDays:   7,
	}
}

func (c SchedulerConfig) WithDefaults() SchedulerConfig {
	d := DefaultSchedulerConfig()
	setDuration := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}

	setDuration(&c.RuleRefresh, d.RuleRefresh)
	setDuration(&c.Stationarity, d.Stationarity)
	setDuration(&c.VolatilityRefit, d.VolatilityRefit)
	setDuration(&c.Prune, d.Prune)

	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}

	return c
}

type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler runs each job on its own ticker. A failing job is logged and retried on
// its next tick.
type Scheduler struct {
	jobs []Job
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Add(name string, every time.Duration, fn func(ctx context.Context) error) {
	s.jobs = append(s.jobs, Job{Name: name, Every: every, Run: fn})
}

func (s *Scheduler) Jobs() []Job {
	return append([]Job(nil), s.jobs...)
}

func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		job := job
		g.Go(func() error {
			runJob(ctx, job)
			return nil
		})
	}

	return g.Wait()
}

func runJob(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Every)
	defer ticker.Stop()

	log.Infof("scheduled %s every %s", job.Name, job.Every)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil {
				log.WithField("job", job.Name).Errorf("scheduled job failed: %v", err)
			}
		}
	}
}

// RegisterJobs adds the periodic analytics tasks. store may be nil, in which case no
// retention job is scheduled.
func RegisterJobs(s *Scheduler, cfg SchedulerConfig, engine *analytics.Engine, evaluator *alerts.Evaluator, store persistence.Store, now func() time.Time) {
	cfg = cfg.WithDefaults()
	if now == nil {
		now = time.Now
	}

	s.Add("rule-refresh", cfg.RuleRefresh, evaluator.Refresh)

	s.Add("stationarity", cfg.Stationarity, func(ctx context.Context) error {
		engine.RefreshStationarity(ctx)
		return nil
	})

	s.Add("volatility-refit", cfg.VolatilityRefit, func(ctx context.Context) error {
		engine.RefitVolatility(ctx)
		return nil
	})

	if store == nil {
		return
	}

	s.Add("retention", cfg.Prune, func(ctx context.Context) error {
		cutoff := now().AddDate(0, 0, -cfg.RetentionDays)
		n, err := store.Prune(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("retention: %w", err)
		}

		if n > 0 {
			log.Infof("pruned %d rows older than %s", n, cutoff.Format(time.RFC3339))
		}
		return nil
	})
}
