package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AlertRule struct {
	ID        uuid.UUID `json:"rule_id"`
	Symbol    string    `json:"symbol"`
	Metric    Metric    `json:"metric"`
	Condition Condition `json:"condition"`
	Threshold float64   `json:"threshold"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *AlertRule) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", InvalidRuleErr)
	}

	if _, ok := metricNames[r.Metric]; !ok {
		return fmt.Errorf("%w: %v", InvalidRuleErr, UnknownMetricErr)
	}

	if err := r.Condition.Validate(); err != nil {
		return fmt.Errorf("%w: %v", InvalidRuleErr, err)
	}

	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite", InvalidRuleErr)
	}

	return nil
}

// Qualifies reports whether the snapshot satisfies the rule. A null metric never qualifies.
func (r *AlertRule) Qualifies(s *MetricsSnapshot) (float64, bool) {
	if s == nil || s.Symbol != r.Symbol {
		return 0, false
	}

	value, ok := r.Metric.Value(s)
	if !ok {
		return 0, false
	}

	return value, r.Condition.Compare(value, r.Threshold)
}

func (r *AlertRule) String() string {
	return fmt.Sprintf("%s %s %s %v", r.Symbol, r.Metric, r.Condition, r.Threshold)
}

type AlertRuleRequest struct {
	Symbol    string    `json:"symbol"`
	Metric    string    `json:"metric"`
	Condition Condition `json:"condition"`
	Threshold float64   `json:"threshold"`
	Enabled   *bool     `json:"enabled"`
}

func (req *AlertRuleRequest) NewObject(id uuid.UUID, now time.Time) (*AlertRule, error) {
	metric, err := ParseMetric(req.Metric)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", InvalidRuleErr, err)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule := &AlertRule{
		ID:        id,
		Symbol:    strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Metric:    metric,
		Condition: req.Condition,
		Threshold: req.Threshold,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}

	return rule, nil
}
