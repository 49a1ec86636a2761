package persistence

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jiaming2012/tick-analytics/src/models"
)

type WindowRecord struct {
	gorm.Model
	Symbol      string    `gorm:"column:symbol;type:text;not null;uniqueIndex:idx_window_symbol_end"`
	WindowStart time.Time `gorm:"column:window_start;type:timestamptz;not null"`
	WindowEnd   time.Time `gorm:"column:window_end;type:timestamptz;not null;uniqueIndex:idx_window_symbol_end;index:idx_window_end"`
	VWAP        float64   `gorm:"column:vwap;type:numeric;not null"`
	Volume      float64   `gorm:"column:volume;type:numeric;not null"`
	TickCount   int       `gorm:"column:tick_count;not null"`
	Low         float64   `gorm:"column:low;type:numeric"`
	High        float64   `gorm:"column:high;type:numeric"`
	Synthetic   bool      `gorm:"column:synthetic;not null"`
}

func (WindowRecord) TableName() string {
	return "windows"
}

func newWindowRecord(w models.Window) WindowRecord {
	return WindowRecord{
		Symbol:      w.Symbol,
		WindowStart: w.WindowStart,
		WindowEnd:   w.WindowEnd,
		VWAP:        w.VWAP,
		Volume:      w.Volume,
		TickCount:   w.TickCount,
		Low:         w.Low,
		High:        w.High,
		Synthetic:   w.Synthetic,
	}
}

func (r WindowRecord) ToWindow() models.Window {
	return models.Window{
		Symbol:      r.Symbol,
		WindowStart: r.WindowStart.UTC(),
		WindowEnd:   r.WindowEnd.UTC(),
		VWAP:        r.VWAP,
		Volume:      r.Volume,
		TickCount:   r.TickCount,
		Low:         r.Low,
		High:        r.High,
		Synthetic:   r.Synthetic,
	}
}

type SnapshotRecord struct {
	gorm.Model
	Symbol             string             `gorm:"column:symbol;type:text;not null;index:idx_snapshot_symbol_ts"`
	Timestamp          time.Time          `gorm:"column:ts;type:timestamptz;not null;index:idx_snapshot_symbol_ts"`
	Price              float64            `gorm:"column:price;type:numeric;not null"`
	Mean               *float64           `gorm:"column:mean;type:numeric"`
	Std                *float64           `gorm:"column:std;type:numeric"`
	ZScore             *float64           `gorm:"column:zscore;type:numeric"`
	SMA                *float64           `gorm:"column:sma;type:numeric"`
	EMA                *float64           `gorm:"column:ema;type:numeric"`
	RSI                *float64           `gorm:"column:rsi;type:numeric"`
	Volatility         *float64           `gorm:"column:volatility;type:numeric"`
	VolatilityFallback bool               `gorm:"column:volatility_fallback;not null"`
	ADFPValue          *float64           `gorm:"column:adf_pvalue;type:numeric"`
	ClusterID          *int               `gorm:"column:cluster_id"`
	Trend              *string            `gorm:"column:trend;type:text"`
	Correlation        map[string]float64 `gorm:"column:correlation;type:jsonb;serializer:json"`
}

func (SnapshotRecord) TableName() string {
	return "metrics_snapshots"
}

func newSnapshotRecord(s *models.MetricsSnapshot) SnapshotRecord {
	var trend *string
	if s.Trend != nil {
		t := string(*s.Trend)
		trend = &t
	}

	return SnapshotRecord{
		Symbol:             s.Symbol,
		Timestamp:          s.Timestamp,
		Price:              s.Price,
		Mean:               s.Mean,
		Std:                s.Std,
		ZScore:             s.ZScore,
		SMA:                s.SMA,
		EMA:                s.EMA,
		RSI:                s.RSI,
		Volatility:         s.Volatility,
		VolatilityFallback: s.VolatilityFallback,
		ADFPValue:          s.ADFPValue,
		ClusterID:          s.ClusterID,
		Trend:              trend,
		Correlation:        s.Correlation,
	}
}

func (r SnapshotRecord) ToSnapshot() *models.MetricsSnapshot {
	var trend *models.Trend
	if r.Trend != nil {
		t := models.Trend(*r.Trend)
		trend = &t
	}

	corr := r.Correlation
	if corr == nil {
		corr = map[string]float64{}
	}

	return &models.MetricsSnapshot{
		Symbol:             r.Symbol,
		Timestamp:          r.Timestamp.UTC(),
		Price:              r.Price,
		Mean:               r.Mean,
		Std:                r.Std,
		ZScore:             r.ZScore,
		SMA:                r.SMA,
		EMA:                r.EMA,
		RSI:                r.RSI,
		Volatility:         r.Volatility,
		VolatilityFallback: r.VolatilityFallback,
		ADFPValue:          r.ADFPValue,
		ClusterID:          r.ClusterID,
		Trend:              trend,
		Correlation:        corr,
	}
}

type TriggerRecord struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	RuleID          uuid.UUID `gorm:"column:rule_id;type:uuid;not null;uniqueIndex:idx_trigger_rule_window"`
	Symbol          string    `gorm:"column:symbol;type:text;not null"`
	Metric          string    `gorm:"column:metric;type:text;not null"`
	Condition       string    `gorm:"column:condition;type:text;not null"`
	Threshold       float64   `gorm:"column:threshold;type:numeric;not null"`
	WindowTimestamp time.Time `gorm:"column:window_timestamp;type:timestamptz;not null;uniqueIndex:idx_trigger_rule_window;index:idx_trigger_window"`
	ObservedValue   float64   `gorm:"column:observed_value;type:numeric;not null"`
	FiredAt         time.Time `gorm:"column:fired_at;type:timestamptz;not null"`
}

func (TriggerRecord) TableName() string {
	return "alert_triggers"
}

func newTriggerRecord(t models.AlertTrigger) TriggerRecord {
	return TriggerRecord{
		ID:              t.ID,
		RuleID:          t.RuleID,
		Symbol:          t.Symbol,
		Metric:          t.Metric.String(),
		Condition:       string(t.Condition),
		Threshold:       t.Threshold,
		WindowTimestamp: t.WindowTimestamp,
		ObservedValue:   t.ObservedValue,
		FiredAt:         t.FiredAt,
	}
}

func (r TriggerRecord) ToTrigger() (models.AlertTrigger, error) {
	metric, err := models.ParseMetric(r.Metric)
	if err != nil {
		return models.AlertTrigger{}, err
	}

	return models.AlertTrigger{
		ID:              r.ID,
		RuleID:          r.RuleID,
		Symbol:          r.Symbol,
		Metric:          metric,
		Condition:       models.Condition(r.Condition),
		Threshold:       r.Threshold,
		WindowTimestamp: r.WindowTimestamp.UTC(),
		ObservedValue:   r.ObservedValue,
		FiredAt:         r.FiredAt.UTC(),
	}, nil
}

type AlertRuleRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Symbol    string    `gorm:"column:symbol;type:text;not null;index:idx_rule_symbol"`
	Metric    string    `gorm:"column:metric;type:text;not null"`
	Condition string    `gorm:"column:condition;type:text;not null"`
	Threshold float64   `gorm:"column:threshold;type:numeric;not null"`
	Enabled   bool      `gorm:"column:enabled;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;not null"`
}

func (AlertRuleRecord) TableName() string {
	return "alert_rules"
}

func newAlertRuleRecord(r *models.AlertRule) AlertRuleRecord {
	return AlertRuleRecord{
		ID:        r.ID,
		Symbol:    r.Symbol,
		Metric:    r.Metric.String(),
		Condition: string(r.Condition),
		Threshold: r.Threshold,
		Enabled:   r.Enabled,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r AlertRuleRecord) ToRule() (*models.AlertRule, error) {
	metric, err := models.ParseMetric(r.Metric)
	if err != nil {
		return nil, err
	}

	return &models.AlertRule{
		ID:        r.ID,
		Symbol:    r.Symbol,
		Metric:    metric,
		Condition: models.Condition(r.Condition),
		Threshold: r.Threshold,
		Enabled:   r.Enabled,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

// AllRecords lists the tables to migrate.
func AllRecords() []interface{} {
	return []interface{}{
		&WindowRecord{},
		&SnapshotRecord{},
		&TriggerRecord{},
		&AlertRuleRecord{},
	}
}
