package hwpulse

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Schedule: ScheduleConfig{
			InitialDelay:    time.Hour,
			Interval:        time.Hour,
			ShutdownTimeout: time.Second,
			WindowCapacity:  10,
		},
		Sources: SourcesConfig{Sensor: "wmi", Process: "wmi"},
		Sink:    SinkConfig{Kind: "influx"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:0"},
		Log:     LogConfig{Level: "info", Format: "json"},
	}
}

func TestNewRuntimeWithCustomAdapters(t *testing.T) {
	sensors := &stubSensors{}
	procs := &stubProcesses{}
	obs := &stubObservability{}

	rt, err := NewRuntime(testConfig(),
		WithLogger(logr.Discard()),
		WithSensorSource(sensors),
		WithProcessSource(procs),
		WithObservability(obs),
	)
	require.NoError(t, err)

	assert.Same(t, sensors, rt.sensors)
	assert.Same(t, procs, rt.processes)
	assert.Same(t, obs, rt.obs)
	assert.Nil(t, rt.sink, "no sink is built while writes are disabled")
	assert.Nil(t, rt.db)
}

func TestNewRuntimeDefaultsFollowConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Sources = SourcesConfig{Sensor: "native", Process: "native"}
	cfg.Sink = SinkConfig{Kind: "influx", WriteEnabled: true, HostTag: "desk"}
	cfg.Influx = InfluxConfig{URL: "http://127.0.0.1:1", Token: "t", Org: "o", Bucket: "b"}

	rt, err := NewRuntime(cfg, WithLogger(logr.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.sink.Close(context.Background()) })

	assert.Equal(t, "native", rt.sensors.Name())
	assert.Same(t, rt.sensors, rt.processes, "native source serves both roles")
	require.NotNil(t, rt.sink)
	assert.Equal(t, "influxdb", rt.sink.Name())
}

func TestNewRuntimeRejectsNilConfig(t *testing.T) {
	_, err := NewRuntime(nil)
	assert.Error(t, err)
}

func TestRuntimeTickForwardsAndPublishes(t *testing.T) {
	var (
		mu     sync.Mutex
		points []Point
		snaps  []Snapshot
	)
	rt, err := NewRuntime(testConfig(),
		WithLogger(logr.Discard()),
		WithSensorSource(&stubSensors{}),
		WithProcessSource(&stubProcesses{}),
		WithSink(NewCallbackSink("test", func(p Point) error {
			mu.Lock()
			defer mu.Unlock()
			points = append(points, p)
			return nil
		})),
		WithSnapshotHook(func(s Snapshot) { snaps = append(snaps, s) }),
	)
	require.NoError(t, err)

	report := rt.Tick(context.Background())
	require.True(t, report.OK(), "failed phases: %v", report.Failed)

	latest, ok := rt.Latest()
	require.True(t, ok)
	assert.Equal(t, "chrome-exe", latest.Sample.TopProcessName)
	assert.Equal(t, 61.5, latest.Sample.Values["gpuTempVal"])
	assert.Equal(t, []float64{61.5}, latest.Windows["gpuTempVal"])
	require.Len(t, snaps, 1)

	var measurements []string
	for _, p := range points {
		measurements = append(measurements, p.Measurement)
	}
	assert.Equal(t, []string{"gpu", "chrome-exe", "chrome-exe"}, measurements)
}

func TestRuntimeHandlerServesMetricsAndSnapshot(t *testing.T) {
	rt, err := NewRuntime(testConfig(),
		WithLogger(logr.Discard()),
		WithSensorSource(&stubSensors{}),
		WithProcessSource(&stubProcesses{}),
	)
	require.NoError(t, err)
	rt.Tick(context.Background())

	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	body := get(t, srv.URL+"/healthz")
	assert.Equal(t, "ok", body)

	metrics := get(t, srv.URL+"/metrics")
	assert.Contains(t, metrics, "hwpulse_ticks_total 1")
	assert.Contains(t, metrics, "hwpulse_tracked_processes 1")

	snap := get(t, srv.URL+"/api/snapshot")
	assert.Contains(t, snap, `"topProcessName":"chrome-exe"`)
}

func TestRuntimeRunStopsOnCancel(t *testing.T) {
	closed := make(chan struct{})
	rt, err := NewRuntime(testConfig(),
		WithLogger(logr.Discard()),
		WithSensorSource(&stubSensors{}),
		WithProcessSource(&stubProcesses{}),
		WithSink(&closeTrackingSink{closed: closed}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}
	select {
	case <-closed:
	default:
		t.Fatal("sink was not closed on shutdown")
	}
}

func TestRuntimeRunIgnoresCloseFailures(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	log := funcr.New(func(_, args string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, args)
	}, funcr.Options{})

	rt, err := NewRuntime(testConfig(),
		WithLogger(log),
		WithSensorSource(&stubSensors{}),
		WithProcessSource(&stubProcesses{}),
	)
	require.NoError(t, err)
	rt.closers = append(rt.closers, func(context.Context) error {
		return errors.New("session close: connection reset")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, rt.Run(ctx))
	assert.Nil(t, rt.closers)

	mu.Lock()
	defer mu.Unlock()
	var logged bool
	for _, l := range lines {
		if strings.Contains(l, "connection reset") {
			logged = true
		}
	}
	assert.True(t, logged, "close failure should be logged: %v", lines)
}

func TestRuntimeRunFailsOnBadAddress(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Addr = "256.0.0.1:bad"
	rt, err := NewRuntime(cfg,
		WithLogger(logr.Discard()),
		WithSensorSource(&stubSensors{}),
		WithProcessSource(&stubProcesses{}),
	)
	require.NoError(t, err)

	assert.Error(t, rt.Run(context.Background()))
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, url)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return strings.TrimSpace(string(b))
}

type stubSensors struct{}

func (s *stubSensors) Name() string { return "stub" }

func (s *stubSensors) ReadSensors(context.Context) ([]RawSensorRecord, error) {
	return []RawSensorRecord{
		{Parent: "/nvidiagpu/0", Name: "GPU Core", SensorType: "Temperature", Value: 61.5, Max: 70},
	}, nil
}

type stubProcesses struct{}

func (s *stubProcesses) Name() string { return "stub" }

func (s *stubProcesses) ReadProcesses(context.Context) ([]ProcessObservation, error) {
	return []ProcessObservation{
		{InstanceName: "Idle", CPUTimePercent: 300},
		{InstanceName: "Chrome.exe", CPUTimePercent: 37.5},
	}, nil
}

func (s *stubProcesses) LogicalProcessors(context.Context) (int, error) { return 4, nil }

type closeTrackingSink struct {
	closed chan struct{}
	once   sync.Once
}

func (s *closeTrackingSink) WritePoint(Point) error { return nil }
func (s *closeTrackingSink) Name() string           { return "tracking" }
func (s *closeTrackingSink) Close(context.Context) error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type stubObservability struct{}

func (s *stubObservability) LogInfo(string, ...Field)            {}
func (s *stubObservability) LogError(string, error, ...Field)    {}
func (s *stubObservability) LogCritical(string, error, ...Field) {}
func (s *stubObservability) IncCounter(string, float64)          {}
func (s *stubObservability) ObserveLatency(string, float64)      {}
func (s *stubObservability) SetGauge(string, float64)            {}
func (s *stubObservability) RecordPhaseFailure(string, error)    {}
