package ports

import (
	"context"

	"github.com/ghalamif/hwpulse/internal/domain"
)

// Sink accepts points for the time-series store. WritePoint must not block
// on durable writes; Close flushes whatever is still buffered.
type Sink interface {
	WritePoint(p domain.Point) error
	Close(ctx context.Context) error
	Name() string
}

// SinkStats is implemented by sinks that can lose points after WritePoint
// accepted them. Both counts are cumulative.
type SinkStats interface {
	Dropped() uint64
	WriteFailures() uint64
}
