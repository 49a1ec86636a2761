package eventpubsub

type EventName string

const (
	WindowsClosedEvent     EventName = "WindowsClosedEvent"
	SnapshotsPublished     EventName = "SnapshotsPublished"
	AlertTriggeredEvent    EventName = "AlertTriggeredEvent"
	FeedStatusChangedEvent EventName = "FeedStatusChangedEvent"
)
