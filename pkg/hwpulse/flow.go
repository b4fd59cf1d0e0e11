package hwpulse

import (
	"context"
	"fmt"
)

// Flow is a convenience builder that lets callers say Conf → Sources → Out
// without touching the underlying adapter wiring.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// SourceOption configures the acquisition side of the flow.
type SourceOption func(*Flow)

// OutOption configures the sink and observability side of the flow.
type OutOption func(*Flow)

// Conf loads configuration, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path, ".env")
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw RuntimeOption values to the builder.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// Sources records acquisition overrides.
func (f *Flow) Sources(opts ...SourceOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Out records sink-side overrides and builds a Runtime ready to run.
func (f *Flow) Out(opts ...OutOption) (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run is a shortcut for Out + runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...OutOption) error {
	rt, err := f.Out(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

func FromSensors(s SensorSource) SourceOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithSensorSource(s))
		}
	}
}

func FromProcesses(p ProcessSource) SourceOption {
	return func(f *Flow) {
		if f != nil && p != nil {
			f.appendOptions(WithProcessSource(p))
		}
	}
}

func ToSink(s Sink) OutOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithSink(s))
		}
	}
}

// ToCallback installs a sink built from a function called once per point.
func ToCallback(name string, fn PointHandler) OutOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithSink(NewCallbackSink(name, fn)))
		}
	}
}

// ToSnapshots registers a hook receiving each tick's snapshot.
func ToSnapshots(fn func(Snapshot)) OutOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithSnapshotHook(fn))
		}
	}
}

func WithOutObservability(obs Observability) OutOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

func (f *Flow) appendOptions(opts ...RuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
