package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ghalamif/hwpulse/internal/domain"
	"github.com/ghalamif/hwpulse/internal/ports"
)

// baselineOffset places the zero point for a newly seen process just before
// its first real value so the two do not collapse into one sample.
const baselineOffset = time.Millisecond

// hardwareFields maps each hardware point to its fields and source keys.
var hardwareFields = []struct {
	measurement string
	fields      [][2]string
}{
	{"gpu", [][2]string{{"temp", "gpuTempVal"}, {"power", "gpuPoweVal"}, {"load", "gpuLoadVal"}, {"fan", "gpuContVal"}}},
	{"cpu", [][2]string{{"temp", "cpuTempVal"}, {"power", "cpuPoweVal"}, {"load", "cpuLoadVal"}, {"fan", "fanContVal"}}},
	{"ram", [][2]string{{"used", "ramDataVal"}}},
}

// BuildPoints maps one tick onto sink points: gpu, cpu and ram points
// followed by one point per process slug in sorted order. A NEW process is
// preceded by a zero-valued point. Keys missing from the sample are left out
// of the field set, and a hardware point with no fields at all is skipped.
func BuildPoints(sample domain.Sample, activity domain.Activity) []domain.Point {
	points := make([]domain.Point, 0, len(hardwareFields)+len(activity.Processes)*2)

	for _, hw := range hardwareFields {
		fields := make(map[string]float64, len(hw.fields))
		for _, f := range hw.fields {
			if v, ok := sample.Values[f[1]]; ok {
				fields[f[0]] = v
			}
		}
		if len(fields) == 0 {
			continue
		}
		points = append(points, domain.Point{
			Measurement: hw.measurement,
			Fields:      fields,
			Timestamp:   sample.DateTime,
		})
	}

	names := make([]string, 0, len(activity.Processes))
	for name := range activity.Processes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rec := activity.Processes[name]
		if rec.State == domain.StateNew {
			points = append(points, processPoint(name, 0, 0, sample.DateTime.Add(-baselineOffset)))
		}
		points = append(points, processPoint(name, rec.CPUSharePercent, rec.RAMPercent, sample.DateTime))
	}

	return points
}

func processPoint(name string, cpu, ram float64, ts time.Time) domain.Point {
	return domain.Point{
		Measurement: name,
		Tags:        map[string]string{"type": "process"},
		Fields:      map[string]float64{"cpu": cpu, "ram": ram},
		Timestamp:   ts,
	}
}

// Forward hands every point for the tick to the sink. Submission does not
// wait for the sink to persist anything; it returns how many points were
// accepted and the joined submission errors.
func Forward(sink ports.Sink, sample domain.Sample, activity domain.Activity) (int, error) {
	if sink == nil {
		return 0, errors.New("forward: sink is nil")
	}

	var (
		sent int
		errs []error
	)
	for _, p := range BuildPoints(sample, activity) {
		if err := sink.WritePoint(p); err != nil {
			errs = append(errs, fmt.Errorf("point %s: %w", p.Measurement, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
