package hwpulse

import (
	"github.com/ghalamif/hwpulse/internal/app/pipeline"
	"github.com/ghalamif/hwpulse/internal/domain"
	"github.com/ghalamif/hwpulse/internal/ports"
)

type (
	// Point is one measurement handed to a Sink.
	Point = domain.Point
	// Sample is the normalized hardware reading of a tick.
	Sample = domain.Sample
	// Activity is the per-process CPU share and lifecycle state of a tick.
	Activity       = domain.Activity
	ProcessRecord  = domain.ProcessRecord
	LifecycleState = domain.LifecycleState
	// Snapshot is what the live view serves after every tick.
	Snapshot           = domain.Snapshot
	RawSensorRecord    = domain.RawSensorRecord
	ProcessObservation = domain.ProcessObservation
)

// SensorSource reads hardware sensors (WMI, gopsutil, OPC UA, or custom).
type SensorSource = ports.SensorSource

// ProcessSource reads per-process CPU usage and the logical processor count.
type ProcessSource = ports.ProcessSource

// Sink accepts points for a time-series store.
type Sink = ports.Sink

// WindowBuffer keeps the rolling per-key history served by the live view.
type WindowBuffer = ports.WindowBuffer

// Observability emits logs and metrics about ticks and phase failures.
type Observability = ports.Observability

type Field = ports.Field

const (
	StateNew    = domain.StateNew
	StateExists = domain.StateExists
	StateRIP    = domain.StateRIP
)

// TickReport lists the phases that failed during a tick.
type TickReport = pipeline.TickReport
