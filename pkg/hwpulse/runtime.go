package hwpulse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/hwpulse/internal/adapters/live"
	"github.com/ghalamif/hwpulse/internal/adapters/observability"
	"github.com/ghalamif/hwpulse/internal/adapters/queue"
	"github.com/ghalamif/hwpulse/internal/adapters/sink"
	"github.com/ghalamif/hwpulse/internal/adapters/source/native"
	"github.com/ghalamif/hwpulse/internal/adapters/source/opcua"
	"github.com/ghalamif/hwpulse/internal/adapters/source/wmi"
	"github.com/ghalamif/hwpulse/internal/adapters/window"
	"github.com/ghalamif/hwpulse/internal/app/config"
	"github.com/ghalamif/hwpulse/internal/app/pipeline"
	"github.com/ghalamif/hwpulse/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	sensors       SensorSource
	processes     ProcessSource
	sink          Sink
	window        WindowBuffer
	observability Observability
	logger        *logr.Logger
	onSnapshot    []func(Snapshot)
	now           func() time.Time
}

// WithSensorSource replaces the configured hardware sensor source.
func WithSensorSource(s SensorSource) RuntimeOption {
	return func(o *runtimeOverrides) { o.sensors = s }
}

// WithProcessSource replaces the configured process source.
func WithProcessSource(p ProcessSource) RuntimeOption {
	return func(o *runtimeOverrides) { o.processes = p }
}

// WithSink injects a custom sink. Forwarding is enabled whenever a sink is
// injected, regardless of the write-enable setting.
func WithSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) { o.sink = s }
}

// WithWindow replaces the in-memory rolling window buffer.
func WithWindow(w WindowBuffer) RuntimeOption {
	return func(o *runtimeOverrides) { o.window = w }
}

// WithObservability plugs in a custom observability backend. The Prometheus
// endpoint then only serves the Go runtime collectors.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) { o.observability = obs }
}

// WithLogger replaces the zap-backed logger built from the log config.
func WithLogger(l logr.Logger) RuntimeOption {
	return func(o *runtimeOverrides) { o.logger = &l }
}

// WithSnapshotHook registers fn to be called with the snapshot of every tick.
func WithSnapshotHook(fn func(Snapshot)) RuntimeOption {
	return func(o *runtimeOverrides) {
		if fn != nil {
			o.onSnapshot = append(o.onSnapshot, fn)
		}
	}
}

// WithClock overrides the time source used to stamp samples.
func WithClock(now func() time.Time) RuntimeOption {
	return func(o *runtimeOverrides) { o.now = now }
}

// Runtime wires sources → scheduler → sink and serves metrics plus the live
// view on the metrics address.
type Runtime struct {
	cfg       *Config
	log       logr.Logger
	syncLog   func()
	obs       ports.Observability
	registry  *prometheus.Registry
	sensors   ports.SensorSource
	processes ports.ProcessSource
	sink      ports.Sink
	window    ports.WindowBuffer
	store     *live.Store
	scheduler *pipeline.Scheduler
	db        *sql.DB
	closers   []func(context.Context) error
	server    *http.Server
}

// NewRuntime bootstraps the default adapters chosen by cfg (WMI or native or
// OPC UA sources, Influx or Timescale sink, Prometheus observability).
// RuntimeOption values override any of them.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	rt := &Runtime{cfg: cfg, syncLog: func() {}, registry: prometheus.NewRegistry()}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if o.logger != nil {
		rt.log = *o.logger
	} else {
		l, sync, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return nil, err
		}
		rt.log, rt.syncLog = l, sync
	}

	rt.obs = o.observability
	if rt.obs == nil {
		rt.obs = observability.NewPromObs(rt.log.WithName("scheduler"), rt.registry)
	}

	if err := rt.buildSources(o); err != nil {
		return nil, err
	}

	forward := cfg.Sink.WriteEnabled || o.sink != nil
	rt.sink = o.sink
	if rt.sink == nil && forward {
		s, err := rt.buildSink()
		if err != nil {
			return nil, err
		}
		rt.sink = s
	}

	rt.window = o.window
	if rt.window == nil {
		rt.window = window.NewRolling(cfg.Schedule.WindowCapacity)
	}

	rt.store = live.NewStore()
	hooks := o.onSnapshot
	publish := func(s Snapshot) {
		rt.store.Publish(s)
		for _, fn := range hooks {
			fn(s)
		}
	}

	sched, err := pipeline.NewScheduler(pipeline.SchedulerConfig{
		InitialDelay:    cfg.Schedule.InitialDelay,
		Interval:        cfg.Schedule.Interval,
		ShutdownTimeout: cfg.Schedule.ShutdownTimeout,
		ForwardEnabled:  forward,
	}, pipeline.Deps{
		Sensors:   rt.sensors,
		Processes: rt.processes,
		Sink:      rt.sink,
		Window:    rt.window,
		Obs:       rt.obs,
		Now:       o.now,
		Publish:   publish,
	})
	if err != nil {
		return nil, err
	}
	rt.scheduler = sched
	return rt, nil
}

func (r *Runtime) buildSources(o runtimeOverrides) error {
	var (
		wmiSrc    *wmi.Source
		nativeSrc *native.Source
	)
	wmiSource := func() *wmi.Source {
		if wmiSrc == nil {
			wmiSrc = wmi.New(nil)
		}
		return wmiSrc
	}
	nativeSource := func() *native.Source {
		if nativeSrc == nil {
			nativeSrc = native.New()
		}
		return nativeSrc
	}

	r.sensors = o.sensors
	if r.sensors == nil {
		switch r.cfg.Sources.Sensor {
		case config.SourceNative:
			r.sensors = nativeSource()
		case config.SourceOPCUA:
			src, err := opcua.New(r.cfg.OPCUA)
			if err != nil {
				return fmt.Errorf("opcua source: %w", err)
			}
			r.closers = append(r.closers, src.Close)
			r.sensors = src
		default:
			r.sensors = wmiSource()
		}
	}

	r.processes = o.processes
	if r.processes == nil {
		switch r.cfg.Sources.Process {
		case config.SourceNative:
			r.processes = nativeSource()
		default:
			r.processes = wmiSource()
		}
	}
	return nil
}

func (r *Runtime) buildSink() (ports.Sink, error) {
	switch r.cfg.Sink.Kind {
	case config.SinkTimescale:
		db, err := sql.Open("postgres", r.cfg.Timescale.ConnString)
		if err != nil {
			return nil, err
		}
		r.db = db
		q := queue.NewMemQueue(r.cfg.Policy.MaxQueueLen, r.cfg.Policy.OnQueueFull)
		return sink.NewTimescaleSink(db, r.cfg.Timescale.Table, q, r.cfg.Policy, r.log.WithName("sink")), nil
	default:
		return sink.NewInfluxSink(sink.InfluxConfig{
			URL:     r.cfg.Influx.URL,
			Token:   r.cfg.Influx.Token,
			Org:     r.cfg.Influx.Org,
			Bucket:  r.cfg.Influx.Bucket,
			HostTag: r.cfg.Sink.HostTag,
		}, r.log.WithName("sink")), nil
	}
}

// Handler serves /metrics, /healthz, /ws and /api/snapshot.
func (r *Runtime) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	live.NewHandler(r.store, r.log).Register(mux)
	return mux
}

// Latest returns the snapshot of the most recent tick.
func (r *Runtime) Latest() (Snapshot, bool) { return r.store.Latest() }

// Tick runs a single tick immediately, outside the schedule.
func (r *Runtime) Tick(ctx context.Context) pipeline.TickReport {
	return r.scheduler.Tick(ctx)
}

// Run serves HTTP and runs the scheduler until ctx is cancelled or the server
// fails. The sink is closed by the scheduler; everything else by Shutdown,
// whose errors are logged and do not fail the run.
func (r *Runtime) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.cfg.Metrics.Addr, err)
	}
	r.server = &http.Server{Handler: r.Handler(), ReadHeaderTimeout: 5 * time.Second}
	r.log.Info("serving metrics and live view", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.scheduler.Run(gctx)
	})
	g.Go(func() error {
		if err := r.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.Schedule.ShutdownTimeout)
		defer cancel()
		return r.server.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.Schedule.ShutdownTimeout)
	defer cancel()
	if err := r.Shutdown(shutdownCtx); err != nil {
		r.log.Error(err, "shutdown incomplete")
	}
	return runErr
}

// Shutdown releases source sessions and the database handle.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	for _, c := range r.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
		r.db = nil
	}
	r.syncLog()
	return errors.Join(errs...)
}
