package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/ghalamif/hwpulse/internal/domain"
	"github.com/ghalamif/hwpulse/internal/ports"
)

const (
	defaultBatchSize     = 500
	defaultFlushInterval = time.Second
)

// TimescaleSink buffers points in a queue and writes them in multi-row
// INSERTs from a background flusher. Close drains the queue.
type TimescaleSink struct {
	db        *sql.DB
	tableName string
	queue     ports.PointQueue
	batchSize int
	log       logr.Logger

	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closed    bool
	failures  uint64
	mu        sync.Mutex
}

func NewTimescaleSink(db *sql.DB, table string, q ports.PointQueue, policy ports.Policy, log logr.Logger) *TimescaleSink {
	batch := policy.MaxBatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	interval := policy.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	t := &TimescaleSink{
		db:        db,
		tableName: table,
		queue:     q,
		batchSize: batch,
		log:       log.WithName("timescale"),
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.flushLoop(interval)
	return t
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

// WritePoint queues p and wakes the flusher once a full batch is waiting.
func (t *TimescaleSink) WritePoint(p domain.Point) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return errors.New("timescale sink closed")
	}
	if !t.queue.Enqueue(p) {
		return ports.ErrQueueFull
	}
	if t.queue.Len() >= t.batchSize {
		select {
		case t.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Close stops the flusher and writes every queued point.
func (t *TimescaleSink) Close(ctx context.Context) error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		close(t.stop)
		select {
		case <-t.done:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
		err = t.drain(ctx)
	})
	return err
}

func (t *TimescaleSink) flushLoop(interval time.Duration) {
	defer close(t.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		case <-t.kick:
		}
		if err := t.drain(context.Background()); err != nil {
			t.log.Error(err, "batch insert failed", "table", t.tableName)
		}
	}
}

func (t *TimescaleSink) drain(ctx context.Context) error {
	var errs []error
	for {
		batch := t.queue.DequeueBatch(t.batchSize)
		if len(batch) == 0 {
			return errors.Join(errs...)
		}
		if err := t.WriteBatch(ctx, batch); err != nil {
			t.mu.Lock()
			t.failures += uint64(len(batch))
			t.mu.Unlock()
			errs = append(errs, err)
		}
	}
}

// WriteBatch inserts points as (ts, measurement, tags, fields) rows.
func (t *TimescaleSink) WriteBatch(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (ts, measurement, tags, fields) VALUES ")

	args := make([]any, 0, len(points)*4)
	for i, p := range points {
		if i > 0 {
			b.WriteString(",")
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4)

		tags, err := json.Marshal(p.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		fields, err := json.Marshal(p.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
		args = append(args, p.Timestamp, p.Measurement, tags, fields)
	}

	if _, err := t.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert %d points: %w", len(points), err)
	}
	return nil
}

// Dropped counts queued points evicted by the overflow policy.
func (t *TimescaleSink) Dropped() uint64 { return t.queue.Dropped() }

// WriteFailures counts points in batches whose INSERT failed.
func (t *TimescaleSink) WriteFailures() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures
}

var (
	_ ports.Sink      = (*TimescaleSink)(nil)
	_ ports.SinkStats = (*TimescaleSink)(nil)
)
