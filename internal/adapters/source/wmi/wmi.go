// Package wmi reads hardware sensors from OpenHardwareMonitor and per-process
// CPU counters through PowerShell's WMI cmdlets.
package wmi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ghalamif/hwpulse/internal/domain"
	"github.com/ghalamif/hwpulse/internal/ports"
)

var (
	SensorNames = []string{
		"CPU Total", "CPU Package", "GPU Power", "GPU Core",
		"GPU Memory Used", "GPU Fan", "Used Memory", "Fan Control #1",
	}
	SensorTypes = []string{"Load", "Temperature", "Control", "Power", "Data"}
)

const (
	sensorFields = "Parent, Name, SensorType, Value, Max, Min"

	processScript = "Get-WmiObject Win32_PerfFormattedData_PerfProc_Process" +
		" | Select-Object Name,PercentProcessorTime"
	logicalCPUScript = "(Get-CimInstance Win32_ComputerSystem).NumberOfLogicalProcessors"
)

// Runner executes a PowerShell script and returns its stdout.
type Runner func(ctx context.Context, script string) ([]byte, error)

// PowerShell runs scripts with powershell.exe, piping the result through
// ConvertTo-Json.
func PowerShell(ctx context.Context, script string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "powershell.exe",
		"-NoProfile", "-NonInteractive", "-Command", script+" | ConvertTo-Json -Compress")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("powershell: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("powershell: %w", err)
	}
	return out, nil
}

type Source struct {
	run          Runner
	sensorScript string
}

// New returns a WMI source. A nil runner uses PowerShell.
func New(run Runner) *Source {
	if run == nil {
		run = PowerShell
	}
	return &Source{run: run, sensorScript: SensorScript(SensorNames, SensorTypes)}
}

func (s *Source) Name() string { return "wmi" }

// SensorScript builds the OpenHardwareMonitor query restricted to the given
// sensor names and types.
func SensorScript(names, types []string) string {
	nameClauses := make([]string, len(names))
	for i, n := range names {
		nameClauses[i] = fmt.Sprintf("Name = %q", n)
	}
	typeClauses := make([]string, len(types))
	for i, t := range types {
		typeClauses[i] = fmt.Sprintf("SensorType = %q", t)
	}
	wql := fmt.Sprintf("select %s from Sensor where (%s) and (%s)",
		sensorFields, strings.Join(nameClauses, " or "), strings.Join(typeClauses, " or "))
	return fmt.Sprintf(`Get-WmiObject -Namespace root\OpenHardwareMonitor -Query '%s' | Select-Object %s`, wql, sensorFields)
}

func (s *Source) ReadSensors(ctx context.Context) ([]domain.RawSensorRecord, error) {
	out, err := s.run(ctx, s.sensorScript)
	if err != nil {
		return nil, fmt.Errorf("sensor query: %w", err)
	}
	recs, err := decodeList[domain.RawSensorRecord](out)
	if err != nil {
		return nil, fmt.Errorf("sensor query: %w", err)
	}
	if len(recs) == 0 {
		return nil, ports.ErrEmptyResponse
	}
	return recs, nil
}

func (s *Source) ReadProcesses(ctx context.Context) ([]domain.ProcessObservation, error) {
	out, err := s.run(ctx, processScript)
	if err != nil {
		return nil, fmt.Errorf("process query: %w", err)
	}
	obs, err := decodeList[domain.ProcessObservation](out)
	if err != nil {
		return nil, fmt.Errorf("process query: %w", err)
	}
	// A healthy counter query always includes _Total and Idle.
	if len(obs) == 0 {
		return nil, ports.ErrEmptyResponse
	}
	return obs, nil
}

func (s *Source) LogicalProcessors(ctx context.Context) (int, error) {
	out, err := s.run(ctx, logicalCPUScript)
	if err != nil {
		return 0, fmt.Errorf("logical processor query: %w", err)
	}
	raw := strings.TrimSpace(string(out))
	if raw == "" {
		return 0, ports.ErrEmptyResponse
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("logical processor query: %w", err)
	}
	return n, nil
}

// decodeList accepts ConvertTo-Json output, which is a bare object when the
// pipeline yielded one item and empty when it yielded none.
func decodeList[T any](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var out []T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return out, nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return []T{one}, nil
}

var (
	_ ports.SensorSource  = (*Source)(nil)
	_ ports.ProcessSource = (*Source)(nil)
)
