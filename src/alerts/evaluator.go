package alerts

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jiaming2012/tick-analytics/src/indicators"
	"github.com/jiaming2012/tick-analytics/src/models"
)

type EvaluatorConfig struct {
	HistorySize int `yaml:"history_size"`

	// DedupRetention is how far behind the newest evaluated window fired keys are
	// remembered. Snapshots older than that horizon are not evaluated at all, so a
	// replayed window can never fire twice.
	DedupRetention time.Duration `yaml:"dedup_retention"`

	Now func() time.Time `yaml:"-"`
}

func (c EvaluatorConfig) withDefaults() EvaluatorConfig {
	if c.HistorySize <= 0 {
		c.HistorySize = 1000
	}

	if c.DedupRetention <= 0 {
		c.DedupRetention = time.Hour
	}

	if c.Now == nil {
		c.Now = time.Now
	}

	return c
}

// ruleSet is an immutable view of the enabled rules, indexed by symbol.
type ruleSet struct {
	bySymbol map[string][]models.AlertRule
	loadedAt time.Time
}

// Evaluator checks snapshots against the last loaded rule set. A rule fires at most
// once per window, and again on each later window while it still qualifies.
type Evaluator struct {
	store RuleStore
	cfg   EvaluatorConfig
	rules atomic.Pointer[ruleSet]

	mu       sync.Mutex
	fired    map[models.TriggerKey]time.Time
	newestTs time.Time
	history  *indicators.RingBuffer[models.AlertTrigger]
	counts   map[uuid.UUID]int
}

func NewEvaluator(store RuleStore, cfg EvaluatorConfig) *Evaluator {
	cfg = cfg.withDefaults()
	e := &Evaluator{
		store:   store,
		cfg:     cfg,
		fired:   make(map[models.TriggerKey]time.Time),
		history: indicators.NewRingBuffer[models.AlertTrigger](cfg.HistorySize),
		counts:  make(map[uuid.UUID]int),
	}

	e.rules.Store(&ruleSet{bySymbol: map[string][]models.AlertRule{}})
	return e
}

// Refresh reloads the enabled rules from the store. On error the previous set is kept.
func (e *Evaluator) Refresh(ctx context.Context) error {
	rules, err := e.store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("evaluator.Refresh: %w", err)
	}

	set := &ruleSet{
		bySymbol: make(map[string][]models.AlertRule),
		loadedAt: e.cfg.Now(),
	}

	enabled := 0
	for _, r := range rules {
		if !r.Enabled {
			continue
		}

		set.bySymbol[r.Symbol] = append(set.bySymbol[r.Symbol], *r)
		enabled++
	}

	e.rules.Store(set)

	log.Debugf("evaluator: loaded %d enabled rules of %d", enabled, len(rules))
	return nil
}

// Evaluate returns the triggers newly fired by snap.
func (e *Evaluator) Evaluate(snap *models.MetricsSnapshot) []models.AlertTrigger {
	if snap == nil {
		return nil
	}

	rules := e.rules.Load().bySymbol[snap.Symbol]
	if len(rules) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.newestTs.IsZero() && snap.Timestamp.Before(e.newestTs.Add(-e.cfg.DedupRetention)) {
		log.WithField("symbol", snap.Symbol).Debugf("alerts: skipping snapshot at %s behind dedup horizon", snap.Timestamp.Format(time.RFC3339))
		return nil
	}

	var out []models.AlertTrigger
	for i := range rules {
		rule := &rules[i]
		value, ok := rule.Qualifies(snap)
		if !ok {
			continue
		}

		key := models.TriggerKey{RuleID: rule.ID, WindowTimestamp: snap.Timestamp.UnixNano()}
		if _, seen := e.fired[key]; seen {
			continue
		}

		trigger := models.AlertTrigger{
			ID:              uuid.New(),
			RuleID:          rule.ID,
			Symbol:          snap.Symbol,
			Metric:          rule.Metric,
			Condition:       rule.Condition,
			Threshold:       rule.Threshold,
			WindowTimestamp: snap.Timestamp,
			ObservedValue:   value,
			FiredAt:         e.cfg.Now(),
		}

		e.fired[key] = snap.Timestamp
		e.history.Push(trigger)
		e.counts[rule.ID]++
		out = append(out, trigger)

		log.WithFields(log.Fields{
			"rule":   rule.ID,
			"symbol": snap.Symbol,
			"value":  value,
		}).Infof("alert fired: %s", rule)
	}

	if snap.Timestamp.After(e.newestTs) {
		e.newestTs = snap.Timestamp
		e.pruneLocked()
	}

	return out
}

func (e *Evaluator) pruneLocked() {
	cutoff := e.newestTs.Add(-e.cfg.DedupRetention)
	for key, ts := range e.fired {
		if ts.Before(cutoff) {
			delete(e.fired, key)
		}
	}
}

// History returns up to limit of the newest triggers, newest first. A limit of zero
// returns the whole retained history.
func (e *Evaluator) History(limit int) models.AlertHistory {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 {
		limit = e.history.Len()
	}

	tail := e.history.Tail(limit)
	alerts := make([]models.AlertTrigger, 0, len(tail))
	for i := len(tail) - 1; i >= 0; i-- {
		alerts = append(alerts, tail[i])
	}

	return models.AlertHistory{
		Timestamp: e.cfg.Now(),
		Count:     len(alerts),
		Alerts:    alerts,
	}
}

func (e *Evaluator) TriggeredCount(ruleID uuid.UUID) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.counts[ruleID]
}

func (e *Evaluator) ActiveRules() int {
	n := 0
	for _, rules := range e.rules.Load().bySymbol {
		n += len(rules)
	}

	return n
}
