package ports

import (
	"context"
	"errors"

	"github.com/ghalamif/hwpulse/internal/domain"
)

// ErrEmptyResponse is returned by sources that got no usable data back.
var ErrEmptyResponse = errors.New("empty response from source")

// SensorSource returns the current hardware sensor readings.
type SensorSource interface {
	ReadSensors(ctx context.Context) ([]domain.RawSensorRecord, error)
	Name() string
}

// ProcessSource returns per-process CPU readings and the host's logical
// processor count.
type ProcessSource interface {
	ReadProcesses(ctx context.Context) ([]domain.ProcessObservation, error)
	LogicalProcessors(ctx context.Context) (int, error)
	Name() string
}
