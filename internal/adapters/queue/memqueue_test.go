package queue

import (
	"testing"

	"github.com/ghalamif/hwpulse/internal/domain"
)

func point(m string) domain.Point {
	return domain.Point{Measurement: m, Fields: map[string]float64{"v": 1}}
}

func TestMemQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewMemQueue(4, OverflowReject)

	if !q.Enqueue(point("gpu")) || !q.Enqueue(point("cpu")) {
		t.Fatalf("expected successful enqueue")
	}

	batch := q.DequeueBatch(1)
	if len(batch) != 1 || batch[0].Measurement != "gpu" {
		t.Fatalf("unexpected first batch: %+v", batch)
	}

	remaining := q.DequeueBatch(10)
	if len(remaining) != 1 || remaining[0].Measurement != "cpu" {
		t.Fatalf("unexpected second batch: %+v", remaining)
	}

	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
	if b := q.DequeueBatch(1); b != nil {
		t.Fatalf("expected nil batch from empty queue, got %+v", b)
	}
}

func TestMemQueueRejectsWhenFull(t *testing.T) {
	q := NewMemQueue(2, OverflowReject)

	if !q.Enqueue(point("a")) || !q.Enqueue(point("b")) {
		t.Fatalf("expected enqueue within capacity")
	}
	if q.Enqueue(point("c")) {
		t.Fatalf("enqueue should fail when capacity exceeded")
	}
	if q.Dropped() != 0 {
		t.Fatalf("reject policy should not drop, got %d", q.Dropped())
	}

	q.DequeueBatch(1)
	if !q.Enqueue(point("d")) {
		t.Fatalf("expected enqueue to succeed after dequeue")
	}
}

func TestMemQueueDropOldest(t *testing.T) {
	q := NewMemQueue(2, OverflowDropOldest)

	for _, m := range []string{"a", "b", "c"} {
		if !q.Enqueue(point(m)) {
			t.Fatalf("drop_oldest should always accept, rejected %s", m)
		}
	}

	batch := q.DequeueBatch(0)
	if len(batch) != 2 || batch[0].Measurement != "b" || batch[1].Measurement != "c" {
		t.Fatalf("unexpected batch after overflow: %+v", batch)
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped point, got %d", q.Dropped())
	}
}
