package models

import (
	"time"

	"github.com/google/uuid"
)

type AlertTrigger struct {
	ID              uuid.UUID `json:"id"`
	RuleID          uuid.UUID `json:"rule_id"`
	Symbol          string    `json:"symbol"`
	Metric          Metric    `json:"metric"`
	Condition       Condition `json:"condition"`
	Threshold       float64   `json:"threshold"`
	WindowTimestamp time.Time `json:"window_timestamp"`
	ObservedValue   float64   `json:"observed_value"`
	FiredAt         time.Time `json:"fired_at"`
}

// TriggerKey identifies a trigger for deduplication.
type TriggerKey struct {
	RuleID          uuid.UUID
	WindowTimestamp int64
}

func (t *AlertTrigger) Key() TriggerKey {
	return TriggerKey{RuleID: t.RuleID, WindowTimestamp: t.WindowTimestamp.UnixNano()}
}
