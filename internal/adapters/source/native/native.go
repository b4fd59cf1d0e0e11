// Package native reads sensors and process CPU usage from the host OS with
// gopsutil. It produces records shaped like OpenHardwareMonitor's so the
// same metric keys come out of normalization.
package native

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/ghalamif/hwpulse/internal/domain"
	"github.com/ghalamif/hwpulse/internal/ports"
)

const gib = 1 << 30

type probes struct {
	cpuPercent   func(ctx context.Context) ([]float64, error)
	temperatures func(ctx context.Context) ([]host.TemperatureStat, error)
	virtualMem   func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	logicalCPUs  func(ctx context.Context) (int, error)
	processes    func(ctx context.Context) ([]proc, error)
}

// proc is the subset of *process.Process the source needs.
type proc interface {
	Pid() int32
	NameWithContext(ctx context.Context) (string, error)
	PercentWithContext(ctx context.Context, interval time.Duration) (float64, error)
}

type Source struct {
	p probes

	mu    sync.Mutex
	procs map[int32]proc
}

func New() *Source {
	return &Source{
		p: probes{
			cpuPercent: func(ctx context.Context) ([]float64, error) {
				return cpu.PercentWithContext(ctx, 0, false)
			},
			temperatures: host.SensorsTemperaturesWithContext,
			virtualMem:   mem.VirtualMemoryWithContext,
			logicalCPUs: func(ctx context.Context) (int, error) {
				return cpu.CountsWithContext(ctx, true)
			},
			processes: func(ctx context.Context) ([]proc, error) {
				ps, err := process.ProcessesWithContext(ctx)
				if err != nil {
					return nil, err
				}
				out := make([]proc, len(ps))
				for i, p := range ps {
					out[i] = gopsProc{p}
				}
				return out, nil
			},
		},
		procs: make(map[int32]proc),
	}
}

func (s *Source) Name() string { return "native" }

// ReadSensors returns CPU load, CPU and GPU temperatures, and used memory in
// GiB. A probe that fails is skipped as long as one succeeds.
func (s *Source) ReadSensors(ctx context.Context) ([]domain.RawSensorRecord, error) {
	var (
		recs []domain.RawSensorRecord
		errs []error
	)

	if pct, err := s.p.cpuPercent(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cpu percent: %w", err))
	} else if len(pct) > 0 {
		recs = append(recs, domain.RawSensorRecord{
			Parent: "/cpu/0", Name: "CPU Total", SensorType: "Load", Value: pct[0], Max: 100,
		})
	}

	if temps, err := s.p.temperatures(ctx); err != nil && len(temps) == 0 {
		errs = append(errs, fmt.Errorf("temperatures: %w", err))
	} else {
		recs = append(recs, temperatureRecords(temps)...)
	}

	if vm, err := s.p.virtualMem(ctx); err != nil {
		errs = append(errs, fmt.Errorf("virtual memory: %w", err))
	} else if vm != nil {
		recs = append(recs, domain.RawSensorRecord{
			Parent: "/ram", Name: "Used Memory", SensorType: "Data",
			Value: float64(vm.Used) / gib, Max: float64(vm.Total) / gib,
		})
	}

	if len(recs) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ports.ErrEmptyResponse
	}
	return recs, nil
}

// temperatureRecords picks the first CPU-looking and first GPU-looking
// sensor key.
func temperatureRecords(temps []host.TemperatureStat) []domain.RawSensorRecord {
	var out []domain.RawSensorRecord
	var haveCPU, haveGPU bool
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		switch {
		case !haveGPU && (strings.Contains(key, "gpu") || strings.Contains(key, "amdgpu") || strings.Contains(key, "nouveau")):
			haveGPU = true
			out = append(out, domain.RawSensorRecord{
				Parent: "/gpu/0", Name: "GPU Core", SensorType: "Temperature", Value: t.Temperature, Max: t.High,
			})
		case !haveCPU && (strings.Contains(key, "package") || strings.Contains(key, "tctl") ||
			strings.Contains(key, "coretemp") || strings.Contains(key, "cpu")):
			haveCPU = true
			out = append(out, domain.RawSensorRecord{
				Parent: "/cpu/0", Name: "CPU Package", SensorType: "Temperature", Value: t.Temperature, Max: t.High,
			})
		}
	}
	return out
}

func (s *Source) LogicalProcessors(ctx context.Context) (int, error) {
	return s.p.logicalCPUs(ctx)
}

// ReadProcesses reports CPU time since the previous call, scaled per logical
// core. Process handles are cached by pid; a process seen for the first time
// reports 0.
func (s *Source) ReadProcesses(ctx context.Context) ([]domain.ProcessObservation, error) {
	current, err := s.p.processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[int32]proc, len(current))
	out := make([]domain.ProcessObservation, 0, len(current))
	for _, p := range current {
		if cached, ok := s.procs[p.Pid()]; ok {
			p = cached
		}
		next[p.Pid()] = p

		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		pct, err := p.PercentWithContext(ctx, 0)
		if err != nil {
			continue
		}
		out = append(out, domain.ProcessObservation{InstanceName: name, CPUTimePercent: pct})
	}
	s.procs = next
	return out, nil
}

type gopsProc struct{ *process.Process }

func (g gopsProc) Pid() int32 { return g.Process.Pid }

var (
	_ ports.SensorSource  = (*Source)(nil)
	_ ports.ProcessSource = (*Source)(nil)
)
