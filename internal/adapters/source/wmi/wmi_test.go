package wmi

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghalamif/hwpulse/internal/domain"
	"github.com/ghalamif/hwpulse/internal/ports"
)

func scripted(responses map[string]string) Runner {
	return func(_ context.Context, script string) ([]byte, error) {
		for marker, out := range responses {
			if strings.Contains(script, marker) {
				return []byte(out), nil
			}
		}
		return nil, errors.New("unexpected script: " + script)
	}
}

func TestSensorScript(t *testing.T) {
	got := SensorScript([]string{"GPU Core", "Used Memory"}, []string{"Load", "Data"})
	want := `Get-WmiObject -Namespace root\OpenHardwareMonitor -Query 'select Parent, Name, SensorType, Value, Max, Min from Sensor where (Name = "GPU Core" or Name = "Used Memory") and (SensorType = "Load" or SensorType = "Data")' | Select-Object Parent, Name, SensorType, Value, Max, Min`
	assert.Equal(t, want, got)
}

func TestReadSensorsArray(t *testing.T) {
	src := New(scripted(map[string]string{
		"OpenHardwareMonitor": `[{"Parent":"/nvidiagpu/0","Name":"GPU Core","SensorType":"Temperature","Value":61.5,"Max":70,"Min":30},
			{"Parent":"/ram","Name":"Used Memory","SensorType":"Data","Value":7.5,"Max":9,"Min":null}]`,
	}))

	recs, err := src.ReadSensors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.RawSensorRecord{
		{Parent: "/nvidiagpu/0", Name: "GPU Core", SensorType: "Temperature", Value: 61.5, Max: 70, Min: 30},
		{Parent: "/ram", Name: "Used Memory", SensorType: "Data", Value: 7.5, Max: 9},
	}, recs)
}

func TestReadSensorsSingleObject(t *testing.T) {
	src := New(scripted(map[string]string{
		"OpenHardwareMonitor": `{"Parent":"/amdcpu/0","Name":"CPU Total","SensorType":"Load","Value":12.3,"Max":99,"Min":1}`,
	}))

	recs, err := src.ReadSensors(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "CPU Total", recs[0].Name)
}

func TestReadSensorsEmpty(t *testing.T) {
	src := New(scripted(map[string]string{"OpenHardwareMonitor": "\r\n"}))

	_, err := src.ReadSensors(context.Background())
	assert.ErrorIs(t, err, ports.ErrEmptyResponse)
}

func TestReadSensorsMalformed(t *testing.T) {
	src := New(scripted(map[string]string{"OpenHardwareMonitor": `{"Parent":`}))

	_, err := src.ReadSensors(context.Background())
	assert.Error(t, err)
}

func TestReadProcesses(t *testing.T) {
	src := New(scripted(map[string]string{
		"PerfProc_Process": `[{"Name":"Idle","PercentProcessorTime":380},{"Name":"chrome#2","PercentProcessorTime":37}]`,
	}))

	obs, err := src.ReadProcesses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.ProcessObservation{
		{InstanceName: "Idle", CPUTimePercent: 380},
		{InstanceName: "chrome#2", CPUTimePercent: 37},
	}, obs)
}

func TestReadProcessesEmpty(t *testing.T) {
	for _, out := range []string{"", "null"} {
		src := New(scripted(map[string]string{"PerfProc_Process": out}))

		_, err := src.ReadProcesses(context.Background())
		assert.ErrorIs(t, err, ports.ErrEmptyResponse, "output %q", out)
	}
}

func TestLogicalProcessors(t *testing.T) {
	src := New(scripted(map[string]string{"NumberOfLogicalProcessors": "8\r\n"}))

	n, err := src.LogicalProcessors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	src = New(scripted(map[string]string{"NumberOfLogicalProcessors": ""}))
	_, err = src.LogicalProcessors(context.Background())
	assert.ErrorIs(t, err, ports.ErrEmptyResponse)
}

func TestRunnerErrorsAreWrapped(t *testing.T) {
	boom := errors.New("exit status 1")
	src := New(func(context.Context, string) ([]byte, error) { return nil, boom })

	_, err := src.ReadSensors(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = src.ReadProcesses(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = src.LogicalProcessors(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "wmi", src.Name())
}
