package hwpulse

import (
	"context"

	"github.com/go-logr/logr"

	base "github.com/ghalamif/hwpulse/pkg/hwpulse"
)

// Re-exported errors for convenience.
var ErrChannelSinkClosed = base.ErrChannelSinkClosed

// Type aliases so consumers can import github.com/ghalamif/hwpulse directly.
type (
	Config             = base.Config
	ScheduleConfig     = base.ScheduleConfig
	SourcesConfig      = base.SourcesConfig
	SinkConfig         = base.SinkConfig
	InfluxConfig       = base.InfluxConfig
	TimescaleConfig    = base.TimescaleConfig
	MetricsConfig      = base.MetricsConfig
	LogConfig          = base.LogConfig
	Policy             = base.Policy
	OPCUAConfig        = base.OPCUAConfig
	OPCUANodeConfig    = base.OPCUANodeConfig
	Flow               = base.Flow
	FlowOption         = base.FlowOption
	SourceOption       = base.SourceOption
	OutOption          = base.OutOption
	Runtime            = base.Runtime
	RuntimeOption      = base.RuntimeOption
	Point              = base.Point
	Sample             = base.Sample
	Snapshot           = base.Snapshot
	Activity           = base.Activity
	ProcessRecord      = base.ProcessRecord
	RawSensorRecord    = base.RawSensorRecord
	ProcessObservation = base.ProcessObservation
	TickReport         = base.TickReport
	PointHandler       = base.PointHandler
	SensorSource       = base.SensorSource
	ProcessSource      = base.ProcessSource
	Sink               = base.Sink
	WindowBuffer       = base.WindowBuffer
	Observability      = base.Observability
	Field              = base.Field
)

// Config helpers.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	return base.LoadConfig(path, envFiles...)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func FromSensors(s SensorSource) SourceOption {
	return base.FromSensors(s)
}

func FromProcesses(p ProcessSource) SourceOption {
	return base.FromProcesses(p)
}

func ToSink(s Sink) OutOption {
	return base.ToSink(s)
}

func ToCallback(name string, fn PointHandler) OutOption {
	return base.ToCallback(name, fn)
}

func ToSnapshots(fn func(Snapshot)) OutOption {
	return base.ToSnapshots(fn)
}

func WithOutObservability(obs Observability) OutOption {
	return base.WithOutObservability(obs)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithSensorSource(s SensorSource) RuntimeOption {
	return base.WithSensorSource(s)
}

func WithProcessSource(p ProcessSource) RuntimeOption {
	return base.WithProcessSource(p)
}

func WithSink(s Sink) RuntimeOption {
	return base.WithSink(s)
}

func WithWindow(w WindowBuffer) RuntimeOption {
	return base.WithWindow(w)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithLogger(l logr.Logger) RuntimeOption {
	return base.WithLogger(l)
}

func WithSnapshotHook(fn func(Snapshot)) RuntimeOption {
	return base.WithSnapshotHook(fn)
}

// Sink adapters.
func NewCallbackSink(name string, fn PointHandler) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan Point) {
	return base.NewChannelSink(name, buffer)
}

// Run loads configuration from path and .env and runs until ctx is done.
func Run(ctx context.Context, path string) error {
	flow, err := base.Conf(path)
	if err != nil {
		return err
	}
	return flow.Run(ctx)
}
