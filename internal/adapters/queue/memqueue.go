package queue

import (
	"sync"

	"github.com/ghalamif/hwpulse/internal/domain"
	"github.com/ghalamif/hwpulse/internal/ports"
)

const (
	OverflowReject     = "reject"
	OverflowDropOldest = "drop_oldest"
)

// MemQueue is a bounded in-memory FIFO of points waiting for a batch write.
type MemQueue struct {
	mu         sync.Mutex
	data       []domain.Point
	cap        int
	dropOldest bool
	dropped    uint64
}

// NewMemQueue returns a queue holding at most capacity points. overflow is
// OverflowReject or OverflowDropOldest; anything else rejects.
func NewMemQueue(capacity int, overflow string) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{
		data:       make([]domain.Point, 0, capacity),
		cap:        capacity,
		dropOldest: overflow == OverflowDropOldest,
	}
}

// Enqueue reports whether p was accepted. With drop_oldest it always is,
// at the cost of the head of the queue.
func (q *MemQueue) Enqueue(p domain.Point) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		if !q.dropOldest {
			return false
		}
		q.data = append(q.data[:0], q.data[1:]...)
		q.dropped++
	}
	q.data = append(q.data, p)
	return true
}

func (q *MemQueue) DequeueBatch(max int) []domain.Point {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]domain.Point, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

// Dropped counts points evicted by drop_oldest.
func (q *MemQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

var _ ports.PointQueue = (*MemQueue)(nil)
