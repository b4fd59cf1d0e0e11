package hwpulse

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewCallbackSink(t *testing.T) {
	var received []Point
	sink := NewCallbackSink("cb", func(p Point) error {
		received = append(received, p)
		return nil
	})

	input := Point{
		Measurement: "gpu",
		Fields:      map[string]float64{"temp": 61.5},
		Timestamp:   time.Unix(1, 0),
	}

	if err := sink.WritePoint(input); err != nil {
		t.Fatalf("WritePoint returned error: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 point, got %d", len(received))
	}
	input.Fields["temp"] = 0
	if received[0].Fields["temp"] != 61.5 {
		t.Fatalf("expected fields to be copied, got %v", received[0].Fields["temp"])
	}
	if sink.Name() != "cb" {
		t.Fatalf("expected name cb, got %s", sink.Name())
	}
}

func TestNewCallbackSinkNilHandler(t *testing.T) {
	sink := NewCallbackSink("", nil)
	if err := sink.WritePoint(Point{Measurement: "cpu"}); err == nil {
		t.Fatalf("expected error when callback is nil")
	}
	if sink.Name() != "callback" {
		t.Fatalf("expected default name, got %s", sink.Name())
	}
}

func TestNewChannelSink(t *testing.T) {
	sink, ch := NewChannelSink("chan", 1)

	if err := sink.WritePoint(Point{Measurement: "ram"}); err != nil {
		t.Fatalf("WritePoint returned error: %v", err)
	}
	if err := sink.WritePoint(Point{Measurement: "cpu"}); err == nil {
		t.Fatalf("expected error when buffer is full")
	}

	select {
	case p := <-ch:
		if p.Measurement != "ram" {
			t.Fatalf("unexpected point: %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel point")
	}

	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	if err := sink.WritePoint(Point{Measurement: "ram"}); !errors.Is(err, ErrChannelSinkClosed) {
		t.Fatalf("expected ErrChannelSinkClosed, got %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
}
