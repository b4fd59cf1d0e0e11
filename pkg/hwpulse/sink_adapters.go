package hwpulse

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("hwpulse: channel sink closed")

// PointHandler receives each point the scheduler forwards.
type PointHandler func(Point) error

// NewCallbackSink adapts a PointHandler into a Sink so callers can plug
// arbitrary functions without defining structs.
func NewCallbackSink(name string, fn PointHandler) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes points via a channel. A full channel rejects the
// point rather than stalling the tick. The channel is closed by Close.
func NewChannelSink(name string, buffer int) (Sink, <-chan Point) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Point, buffer)
	return &channelSink{name: name, ch: ch, closed: make(chan struct{})}, ch
}

type callbackSink struct {
	name string
	fn   PointHandler
}

func (s *callbackSink) WritePoint(p Point) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler", s.name)
	}
	return s.fn(clonePoint(p))
}

func (s *callbackSink) Close(context.Context) error { return nil }

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	mu     sync.Mutex
	ch     chan Point
	closed chan struct{}
	once   sync.Once
}

func (s *channelSink) WritePoint(p Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	select {
	case s.ch <- clonePoint(p):
		return nil
	default:
		return fmt.Errorf("channel sink %q: buffer full", s.name)
	}
}

func (s *channelSink) Close(context.Context) error {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		close(s.closed)
		close(s.ch)
	})
	return nil
}

func (s *channelSink) Name() string { return s.name }

func clonePoint(p Point) Point {
	out := Point{Measurement: p.Measurement, Timestamp: p.Timestamp}
	if p.Tags != nil {
		out.Tags = make(map[string]string, len(p.Tags))
		for k, v := range p.Tags {
			out.Tags[k] = v
		}
	}
	out.Fields = make(map[string]float64, len(p.Fields))
	for k, v := range p.Fields {
		out.Fields[k] = v
	}
	return out
}
