package window

import (
	"sync"

	"github.com/ghalamif/hwpulse/internal/ports"
)

// DefaultCapacity is the eviction threshold for each key's history.
const DefaultCapacity = 10

// Rolling keeps a short FIFO history per metric key. A key's history is
// trimmed only once it already holds more than capacity values, so it can
// reach capacity+1 entries.
type Rolling struct {
	mu   sync.Mutex
	data map[string][]float64
	cap  int
}

func NewRolling(capacity int) *Rolling {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Rolling{
		data: make(map[string][]float64),
		cap:  capacity,
	}
}

func (r *Rolling) Append(key string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	series, ok := r.data[key]
	if !ok {
		series = make([]float64, 0, r.cap+1)
	} else if len(series) > r.cap {
		series = append(series[:0], series[1:]...)
	}
	r.data[key] = append(series, v)
}

// Window returns a copy of the history for key, oldest first.
func (r *Rolling) Window(key string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	series, ok := r.data[key]
	if !ok {
		return nil
	}
	out := make([]float64, len(series))
	copy(out, series)
	return out
}

func (r *Rolling) Snapshot() map[string][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]float64, len(r.data))
	for k, series := range r.data {
		cp := make([]float64, len(series))
		copy(cp, series)
		out[k] = cp
	}
	return out
}

// Len reports the number of tracked keys.
func (r *Rolling) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *Rolling) Capacity() int { return r.cap }

var _ ports.WindowBuffer = (*Rolling)(nil)
