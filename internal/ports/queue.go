package ports

import (
	"errors"

	"github.com/ghalamif/hwpulse/internal/domain"
)

// ErrQueueFull is returned by sinks whose buffer rejected a point.
var ErrQueueFull = errors.New("point queue full")

type PointQueue interface {
	Enqueue(p domain.Point) bool
	DequeueBatch(max int) []domain.Point
	Len() int
	Dropped() uint64
}
