package worker

import (
	"context"

	"github.com/jiaming2012/tick-analytics/src/models"
)

// TickSource produces ticks until ctx is cancelled or the source gives up, then closes
// the returned channel.
type TickSource interface {
	Start(ctx context.Context) <-chan models.Tick
	Connected() bool
}
