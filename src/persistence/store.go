package persistence

import (
	"context"
	"time"

	"github.com/jiaming2012/tick-analytics/src/models"
)

// Store is the durable side of the pipeline. Writes are append-only.
type Store interface {
	AppendWindows(ctx context.Context, windows []models.Window) error
	AppendSnapshots(ctx context.Context, snapshots []*models.MetricsSnapshot) error
	AppendTriggers(ctx context.Context, triggers []models.AlertTrigger) error
	// QueryWindows returns the windows of symbol that closed within [from, to], oldest first.
	QueryWindows(ctx context.Context, symbol string, from, to time.Time) ([]models.Window, error)
	QuerySnapshots(ctx context.Context, symbol string, from, to time.Time) ([]*models.MetricsSnapshot, error)
	QueryTriggers(ctx context.Context, from, to time.Time) ([]models.AlertTrigger, error)
	// Prune deletes rows older than before and returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
