package models

import "time"

type FeedStatus struct {
	Status            string     `json:"status"`
	UptimeSeconds     float64    `json:"uptime_seconds"`
	TicksReceived     uint64     `json:"ticks_received"`
	TicksRejected     uint64     `json:"ticks_rejected"`
	LastTickTimestamp *time.Time `json:"last_tick_timestamp"`
}

type CorrelationMatrix struct {
	Timestamp    time.Time          `json:"timestamp"`
	Correlations map[string]float64 `json:"correlations"`
}

type Clusters struct {
	Timestamp time.Time  `json:"timestamp"`
	Clusters  [][]string `json:"clusters"`
}

type PriceHistory struct {
	Symbol string    `json:"symbol"`
	Count  int       `json:"count"`
	Prices []float64 `json:"prices"`
}

type AlertRuleView struct {
	*AlertRule
	TriggeredCount int `json:"triggered_count"`
}

type AlertHistory struct {
	Timestamp time.Time      `json:"timestamp"`
	Count     int            `json:"count"`
	Alerts    []AlertTrigger `json:"alerts"`
}
