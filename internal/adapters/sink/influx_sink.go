package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/go-logr/logr"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/ghalamif/hwpulse/internal/domain"
	"github.com/ghalamif/hwpulse/internal/ports"
)

type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	HostTag     string
	BatchSize   uint
	FlushMillis uint
}

// pointWriter is the part of the client's non-blocking write API the sink uses.
type pointWriter interface {
	WritePoint(p *write.Point)
	Flush()
	Errors() <-chan error
}

// InfluxSink hands points to the InfluxDB non-blocking writer. Write errors
// surface asynchronously and are logged.
type InfluxSink struct {
	w       pointWriter
	closeFn func()
	log     logr.Logger

	drained   chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	failures  uint64
}

func NewInfluxSink(cfg InfluxConfig, log logr.Logger) *InfluxSink {
	opts := influxdb2.DefaultOptions()
	if cfg.HostTag != "" {
		opts.AddDefaultTag("host", cfg.HostTag)
	}
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushMillis > 0 {
		opts.SetFlushInterval(cfg.FlushMillis)
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	return newInfluxSink(client.WriteAPI(cfg.Org, cfg.Bucket), client.Close, log)
}

func newInfluxSink(w pointWriter, closeFn func(), log logr.Logger) *InfluxSink {
	s := &InfluxSink{
		w:       w,
		closeFn: closeFn,
		log:     log.WithName("influx"),
		drained: make(chan struct{}),
	}
	errs := w.Errors()
	go s.drainErrors(errs)
	return s
}

func (s *InfluxSink) Name() string { return "influxdb" }

func (s *InfluxSink) WritePoint(p domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("influx sink closed")
	}
	fields := make(map[string]interface{}, len(p.Fields))
	for k, v := range p.Fields {
		fields[k] = v
	}
	s.w.WritePoint(write.NewPoint(p.Measurement, p.Tags, fields, p.Timestamp))
	return nil
}

// Close flushes buffered points and closes the client. It waits for the
// error channel to drain or ctx to expire.
func (s *InfluxSink) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.w.Flush()
		s.closeFn()

		select {
		case <-s.drained:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

// Dropped is always zero; the client retries internally and reports what it
// gives up on through WriteFailures.
func (s *InfluxSink) Dropped() uint64 { return 0 }

// WriteFailures returns how many asynchronous write errors were reported.
func (s *InfluxSink) WriteFailures() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *InfluxSink) drainErrors(errs <-chan error) {
	defer close(s.drained)
	if errs == nil {
		return
	}
	for err := range errs {
		s.mu.Lock()
		s.failures++
		s.mu.Unlock()
		s.log.Error(err, "write failed")
	}
}

var (
	_ ports.Sink      = (*InfluxSink)(nil)
	_ ports.SinkStats = (*InfluxSink)(nil)
)
