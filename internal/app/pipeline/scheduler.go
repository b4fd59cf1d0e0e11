package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ghalamif/hwpulse/internal/domain"
	"github.com/ghalamif/hwpulse/internal/ports"
)

// Tick phases, in execution order.
const (
	PhaseLogicalCPUs = "logical_cpus"
	PhaseProcesses   = "processes"
	PhaseSensors     = "sensors"
	PhaseForward     = "forward"
	PhaseBuffer      = "buffer"
)

type SchedulerConfig struct {
	InitialDelay    time.Duration
	Interval        time.Duration
	ShutdownTimeout time.Duration
	ForwardEnabled  bool
}

// Deps are the collaborators a Scheduler drives. Sink may be nil when
// forwarding is disabled. Now and Publish are optional.
type Deps struct {
	Sensors   ports.SensorSource
	Processes ports.ProcessSource
	Sink      ports.Sink
	Window    ports.WindowBuffer
	Obs       ports.Observability
	Now       func() time.Time
	Publish   func(domain.Snapshot)
}

// State is everything carried from one tick to the next. Only the tick in
// flight touches it.
type State struct {
	LogicalCPUs int
	Known       KnownSet
	Activity    domain.Activity
	Sensors     map[string]float64
	LastTick    time.Time
}

// TickReport records which phases failed during a tick.
type TickReport struct {
	At       time.Time
	Sample   domain.Sample
	Forwards int
	Failed   map[string]error
}

func (r TickReport) OK() bool { return len(r.Failed) == 0 }

func (r *TickReport) record(phase string, err error) {
	if err == nil {
		return
	}
	if r.Failed == nil {
		r.Failed = make(map[string]error)
	}
	r.Failed[phase] = err
}

// Scheduler runs ticks one after another: an initial delay, then one tick
// every Interval until the context is cancelled.
type Scheduler struct {
	cfg   SchedulerConfig
	deps  Deps
	state State
	acked bool

	// cumulative sink losses already reported
	dropped  uint64
	failures uint64
}

func NewScheduler(cfg SchedulerConfig, deps Deps) (*Scheduler, error) {
	if deps.Sensors == nil {
		return nil, fmt.Errorf("sensor source is required")
	}
	if deps.Processes == nil {
		return nil, fmt.Errorf("process source is required")
	}
	if deps.Window == nil {
		return nil, fmt.Errorf("window buffer is required")
	}
	if deps.Obs == nil {
		return nil, fmt.Errorf("observability is required")
	}
	if cfg.ForwardEnabled && deps.Sink == nil {
		return nil, fmt.Errorf("sink is required when forwarding is enabled")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Scheduler{
		cfg:  cfg,
		deps: deps,
		state: State{
			Known:   make(KnownSet),
			Sensors: make(map[string]float64),
		},
	}, nil
}

// Run blocks until ctx is cancelled. A tick already in progress when the
// context is cancelled runs to completion; no further tick is started. The
// sink is then closed within ShutdownTimeout.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.InitialDelay)
	defer timer.Stop()

	s.deps.Obs.LogInfo("scheduler_started",
		ports.Field{Key: "initial_delay", Value: s.cfg.InitialDelay},
		ports.Field{Key: "interval", Value: s.cfg.Interval},
		ports.Field{Key: "forward", Value: s.cfg.ForwardEnabled})

	for {
		select {
		case <-ctx.Done():
			s.closeSink()
			return nil
		case <-timer.C:
		}

		s.Tick(context.WithoutCancel(ctx))

		if ctx.Err() != nil {
			s.closeSink()
			return nil
		}
		timer.Reset(s.cfg.Interval)
	}
}

// Tick runs every phase once. A failing phase is recorded and logged; the
// remaining phases still run.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	start := time.Now()

	now := s.deps.Now()
	if now.Before(s.state.LastTick) {
		now = s.state.LastTick
	}
	s.state.LastTick = now

	report := TickReport{At: now}

	report.record(PhaseLogicalCPUs, s.runPhase(PhaseLogicalCPUs, func() error {
		return s.acquireLogicalCPUs(ctx)
	}))
	report.record(PhaseProcesses, s.runPhase(PhaseProcesses, func() error {
		return s.acquireActivity(ctx)
	}))
	report.record(PhaseSensors, s.runPhase(PhaseSensors, func() error {
		return s.acquireSensors(ctx)
	}))

	sample := s.buildSample(now)
	report.Sample = sample

	if s.cfg.ForwardEnabled {
		report.record(PhaseForward, s.runPhase(PhaseForward, func() error {
			n, err := Forward(s.deps.Sink, sample, s.state.Activity)
			report.Forwards = n
			s.deps.Obs.IncCounter("hwpulse_points_forwarded_total", float64(n))
			return err
		}))
	}

	if s.deps.Sink != nil {
		s.reportSinkLosses()
	}

	report.record(PhaseBuffer, s.runPhase(PhaseBuffer, func() error {
		for key, v := range sample.Values {
			s.deps.Window.Append(key, v)
		}
		return nil
	}))

	s.deps.Obs.IncCounter("hwpulse_ticks_total", 1)
	s.deps.Obs.ObserveLatency("hwpulse_tick_duration_seconds", time.Since(start).Seconds())
	s.deps.Obs.SetGauge("hwpulse_tracked_processes", float64(len(s.state.Known)))
	s.deps.Obs.SetGauge("hwpulse_window_keys", float64(s.deps.Window.Len()))

	if s.deps.Publish != nil {
		s.deps.Publish(domain.Snapshot{
			Sample:   sample,
			Activity: s.state.Activity,
			Windows:  s.deps.Window.Snapshot(),
		})
	}

	if report.OK() && !s.acked {
		s.acked = true
		s.deps.Obs.LogInfo("first_tick_complete", ports.Field{Key: "at", Value: now})
	}

	return report
}

// State returns the state carried into the next tick.
func (s *Scheduler) State() State { return s.state }

func (s *Scheduler) runPhase(phase string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			s.deps.Obs.RecordPhaseFailure(phase, err)
		}
	}()
	return fn()
}

func (s *Scheduler) acquireLogicalCPUs(ctx context.Context) error {
	if s.state.LogicalCPUs > 0 {
		return nil
	}
	n, err := s.deps.Processes.LogicalProcessors(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", s.deps.Processes.Name(), err)
	}
	if n <= 0 {
		return fmt.Errorf("%s: invalid logical processor count %d", s.deps.Processes.Name(), n)
	}
	s.state.LogicalCPUs = n
	return nil
}

// acquireActivity updates the process activity. On any failure the previous
// activity is kept in its stale form so forwarding still has data.
func (s *Scheduler) acquireActivity(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			s.state.Activity = s.state.Activity.Stale()
		}
	}()

	if s.state.LogicalCPUs <= 0 {
		return ErrLogicalCPUsUnknown
	}
	obs, err := s.deps.Processes.ReadProcesses(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", s.deps.Processes.Name(), err)
	}
	if len(obs) == 0 {
		return fmt.Errorf("%s: %w", s.deps.Processes.Name(), ports.ErrEmptyResponse)
	}

	activity, next, err := TrackActivity(s.state.Known, obs, s.state.LogicalCPUs)
	if err != nil {
		return err
	}
	s.state.Activity = activity
	s.state.Known = next
	return nil
}

// acquireSensors replaces the sensor values only on success; on failure the
// previous values are reused for this tick.
func (s *Scheduler) acquireSensors(ctx context.Context) error {
	records, err := s.deps.Sensors.ReadSensors(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", s.deps.Sensors.Name(), err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%s: %w", s.deps.Sensors.Name(), ports.ErrEmptyResponse)
	}
	s.state.Sensors = NormalizeSensors(records)
	return nil
}

func (s *Scheduler) buildSample(now time.Time) domain.Sample {
	values := make(map[string]float64, len(s.state.Sensors))
	for k, v := range s.state.Sensors {
		values[k] = v
	}
	return domain.Sample{
		DateTime:       now,
		TopProcessName: s.state.Activity.Top,
		Values:         values,
	}
}

// reportSinkLosses turns the sink's cumulative loss counts into counter
// increments and logs any new drops.
func (s *Scheduler) reportSinkLosses() {
	stats, ok := s.deps.Sink.(ports.SinkStats)
	if !ok {
		return
	}
	if d := stats.Dropped(); d > s.dropped {
		s.deps.Obs.IncCounter("hwpulse_points_dropped_total", float64(d-s.dropped))
		s.deps.Obs.LogError("sink_points_dropped", ports.ErrQueueFull,
			ports.Field{Key: "sink", Value: s.deps.Sink.Name()},
			ports.Field{Key: "dropped", Value: d - s.dropped})
		s.dropped = d
	}
	if f := stats.WriteFailures(); f > s.failures {
		s.deps.Obs.IncCounter("hwpulse_sink_write_failures_total", float64(f-s.failures))
		s.failures = f
	}
}

func (s *Scheduler) closeSink() {
	if s.deps.Sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.deps.Sink.Close(ctx); err != nil {
		s.deps.Obs.LogCritical("sink_close_failed", err, ports.Field{Key: "sink", Value: s.deps.Sink.Name()})
		return
	}
	s.reportSinkLosses()
	s.deps.Obs.LogInfo("sink_closed", ports.Field{Key: "sink", Value: s.deps.Sink.Name()})
}
