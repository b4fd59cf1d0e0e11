package native

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/hwpulse/internal/domain"
	"github.com/ghalamif/hwpulse/internal/ports"
)

type fakeProc struct {
	pid   int32
	name  string
	pcts  []float64
	calls int
}

func (f *fakeProc) Pid() int32 { return f.pid }

func (f *fakeProc) NameWithContext(context.Context) (string, error) { return f.name, nil }

func (f *fakeProc) PercentWithContext(context.Context, time.Duration) (float64, error) {
	v := f.pcts[f.calls%len(f.pcts)]
	f.calls++
	return v, nil
}

func TestReadSensorsMapsToHardwareRecords(t *testing.T) {
	src := &Source{p: probes{
		cpuPercent: func(context.Context) ([]float64, error) { return []float64{23.5}, nil },
		temperatures: func(context.Context) ([]host.TemperatureStat, error) {
			return []host.TemperatureStat{
				{SensorKey: "nvme_composite", Temperature: 40},
				{SensorKey: "coretemp_package_id_0", Temperature: 55, High: 90},
				{SensorKey: "amdgpu_edge", Temperature: 48, High: 100},
				{SensorKey: "coretemp_core_1", Temperature: 60},
			}, nil
		},
		virtualMem: func(context.Context) (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Used: 3 * gib, Total: 16 * gib}, nil
		},
	}}

	recs, err := src.ReadSensors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.RawSensorRecord{
		{Parent: "/cpu/0", Name: "CPU Total", SensorType: "Load", Value: 23.5, Max: 100},
		{Parent: "/cpu/0", Name: "CPU Package", SensorType: "Temperature", Value: 55, Max: 90},
		{Parent: "/gpu/0", Name: "GPU Core", SensorType: "Temperature", Value: 48, Max: 100},
		{Parent: "/ram", Name: "Used Memory", SensorType: "Data", Value: 3, Max: 16},
	}, recs)
}

func TestReadSensorsPartialFailure(t *testing.T) {
	src := &Source{p: probes{
		cpuPercent:   func(context.Context) ([]float64, error) { return nil, errors.New("no /proc/stat") },
		temperatures: func(context.Context) ([]host.TemperatureStat, error) { return nil, errors.New("no sensors") },
		virtualMem: func(context.Context) (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Used: gib, Total: 2 * gib}, nil
		},
	}}

	recs, err := src.ReadSensors(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "/ram", recs[0].Parent)
}

func TestReadSensorsAllFailed(t *testing.T) {
	boom := errors.New("boom")
	src := &Source{p: probes{
		cpuPercent:   func(context.Context) ([]float64, error) { return nil, boom },
		temperatures: func(context.Context) ([]host.TemperatureStat, error) { return nil, boom },
		virtualMem:   func(context.Context) (*mem.VirtualMemoryStat, error) { return nil, boom },
	}}

	_, err := src.ReadSensors(context.Background())
	assert.ErrorIs(t, err, boom)

	src.p.cpuPercent = func(context.Context) ([]float64, error) { return nil, nil }
	src.p.temperatures = func(context.Context) ([]host.TemperatureStat, error) { return nil, nil }
	src.p.virtualMem = func(context.Context) (*mem.VirtualMemoryStat, error) { return nil, nil }
	_, err = src.ReadSensors(context.Background())
	assert.ErrorIs(t, err, ports.ErrEmptyResponse)
}

func TestReadProcessesReusesHandlesByPid(t *testing.T) {
	chrome := &fakeProc{pid: 10, name: "chrome", pcts: []float64{0, 37.5}}
	list := []proc{chrome, &fakeProc{pid: 11, name: ""}}

	src := &Source{
		p: probes{
			processes: func(context.Context) ([]proc, error) { return list, nil },
		},
		procs: make(map[int32]proc),
	}

	first, err := src.ReadProcesses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ProcessObservation{{InstanceName: "chrome", CPUTimePercent: 0}}, first)

	// A fresh handle for the same pid must not reset the CPU baseline.
	list = []proc{&fakeProc{pid: 10, name: "chrome", pcts: []float64{0}}}
	second, err := src.ReadProcesses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ProcessObservation{{InstanceName: "chrome", CPUTimePercent: 37.5}}, second)
	assert.Len(t, src.procs, 1)
}

func TestLogicalProcessors(t *testing.T) {
	src := &Source{p: probes{logicalCPUs: func(context.Context) (int, error) { return 12, nil }}}

	n, err := src.LogicalProcessors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, "native", src.Name())
}
