package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jiaming2012/tick-analytics/src/dbutils"
	"github.com/jiaming2012/tick-analytics/src/models"
)

// PostgresStore persists windows, snapshots, triggers and alert rules through gorm.
// It also serves as the durable alerts.RuleStore.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(dsn string, logLevel string) (*PostgresStore, error) {
	db, err := dbutils.InitPostgresWithUrl(dsn, logLevel, AllRecords()...)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresStore: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AppendWindows(ctx context.Context, windows []models.Window) error {
	if len(windows) == 0 {
		return nil
	}

	records := make([]WindowRecord, len(windows))
	for i, w := range windows {
		records[i] = newWindowRecord(w)
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error; err != nil {
		return fmt.Errorf("PostgresStore.AppendWindows: %w", err)
	}

	return nil
}

func (s *PostgresStore) AppendSnapshots(ctx context.Context, snapshots []*models.MetricsSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	records := make([]SnapshotRecord, len(snapshots))
	for i, snap := range snapshots {
		records[i] = newSnapshotRecord(snap)
	}

	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("PostgresStore.AppendSnapshots: %w", err)
	}

	return nil
}

func (s *PostgresStore) AppendTriggers(ctx context.Context, triggers []models.AlertTrigger) error {
	if len(triggers) == 0 {
		return nil
	}

	records := make([]TriggerRecord, len(triggers))
	for i, t := range triggers {
		records[i] = newTriggerRecord(t)
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error; err != nil {
		return fmt.Errorf("PostgresStore.AppendTriggers: %w", err)
	}

	return nil
}

func (s *PostgresStore) QueryWindows(ctx context.Context, symbol string, from, to time.Time) ([]models.Window, error) {
	var records []WindowRecord
	q := s.db.WithContext(ctx).Where("symbol = ?", symbol)
	q = timeRange(q, "window_end", from, to)

	if err := q.Order("window_end asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("PostgresStore.QueryWindows: %w", err)
	}

	out := make([]models.Window, len(records))
	for i, r := range records {
		out[i] = r.ToWindow()
	}

	return out, nil
}

func (s *PostgresStore) QuerySnapshots(ctx context.Context, symbol string, from, to time.Time) ([]*models.MetricsSnapshot, error) {
	var records []SnapshotRecord
	q := s.db.WithContext(ctx).Where("symbol = ?", symbol)
	q = timeRange(q, "ts", from, to)

	if err := q.Order("ts asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("PostgresStore.QuerySnapshots: %w", err)
	}

	out := make([]*models.MetricsSnapshot, len(records))
	for i, r := range records {
		out[i] = r.ToSnapshot()
	}

	return out, nil
}

func (s *PostgresStore) QueryTriggers(ctx context.Context, from, to time.Time) ([]models.AlertTrigger, error) {
	var records []TriggerRecord
	q := timeRange(s.db.WithContext(ctx), "window_timestamp", from, to)

	if err := q.Order("window_timestamp asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("PostgresStore.QueryTriggers: %w", err)
	}

	out := make([]models.AlertTrigger, 0, len(records))
	for _, r := range records {
		t, err := r.ToTrigger()
		if err != nil {
			log.Warnf("PostgresStore.QueryTriggers: skipping trigger %s: %v", r.ID, err)
			continue
		}
		out = append(out, t)
	}

	return out, nil
}

func (s *PostgresStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, q := range []struct {
			model  interface{}
			column string
		}{
			{&WindowRecord{}, "window_end"},
			{&SnapshotRecord{}, "ts"},
			{&TriggerRecord{}, "window_timestamp"},
		} {
			result := tx.Unscoped().Where(q.column+" < ?", before).Delete(q.model)
			if result.Error != nil {
				return result.Error
			}
			removed += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("PostgresStore.Prune: %w", err)
	}

	return removed, nil
}

func (s *PostgresStore) CreateRule(ctx context.Context, rule *models.AlertRule) error {
	record := newAlertRuleRecord(rule)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("PostgresStore.CreateRule: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetRule(ctx context.Context, id uuid.UUID) (*models.AlertRule, error) {
	var record AlertRuleRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("PostgresStore.GetRule: %s: %w", id, models.RuleNotFoundErr)
		}
		return nil, fmt.Errorf("PostgresStore.GetRule: %w", err)
	}

	return record.ToRule()
}

func (s *PostgresStore) ListRules(ctx context.Context) ([]*models.AlertRule, error) {
	var records []AlertRuleRecord
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("PostgresStore.ListRules: %w", err)
	}

	out := make([]*models.AlertRule, 0, len(records))
	for _, r := range records {
		rule, err := r.ToRule()
		if err != nil {
			log.Warnf("PostgresStore.ListRules: skipping rule %s: %v", r.ID, err)
			continue
		}
		out = append(out, rule)
	}

	return out, nil
}

func (s *PostgresStore) UpdateRule(ctx context.Context, rule *models.AlertRule) error {
	record := newAlertRuleRecord(rule)
	result := s.db.WithContext(ctx).Model(&AlertRuleRecord{}).Where("id = ?", rule.ID).Updates(map[string]interface{}{
		"symbol":     record.Symbol,
		"metric":     record.Metric,
		"condition":  record.Condition,
		"threshold":  record.Threshold,
		"enabled":    record.Enabled,
		"updated_at": record.UpdatedAt,
	})
	if result.Error != nil {
		return fmt.Errorf("PostgresStore.UpdateRule: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("PostgresStore.UpdateRule: %s: %w", rule.ID, models.RuleNotFoundErr)
	}

	return nil
}

func (s *PostgresStore) DeleteRule(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&AlertRuleRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("PostgresStore.DeleteRule: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("PostgresStore.DeleteRule: %s: %w", id, models.RuleNotFoundErr)
	}

	return nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func timeRange(q *gorm.DB, column string, from, to time.Time) *gorm.DB {
	if !from.IsZero() {
		q = q.Where(column+" >= ?", from)
	}

	if !to.IsZero() {
		q = q.Where(column+" <= ?", to)
	}

	return q
}
