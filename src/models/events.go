package models

import "context"

type WindowsClosedEvent struct {
	Ctx     context.Context
	Windows []Window
}

type SnapshotsPublishedEvent struct {
	Ctx       context.Context
	Snapshots []*MetricsSnapshot
}

type AlertTriggeredEvent struct {
	Ctx      context.Context
	Triggers []AlertTrigger
}

type FeedStatusChangedEvent struct {
	Connected bool
}
