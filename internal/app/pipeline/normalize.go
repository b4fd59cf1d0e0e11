package pipeline

import (
	"math"
	"strings"

	"github.com/ghalamif/hwpulse/internal/domain"
)

// ramParent is the sensor hierarchy Open Hardware Monitor uses for memory.
const ramParent = "/ram"

// NormalizeSensors flattens raw sensor records into metric keys of the form
// {category}{property}Val and {category}{property}Max.
//
// The category is "ram" for memory sensors and otherwise the first three
// lowercase characters of the sensor name, so "GPU Core" and "GPU Power"
// share the "gpu" category. Two sensors whose names share a prefix and type
// overwrite each other; downstream consumers read the abbreviated keys
// directly, so the scheme is kept as is.
func NormalizeSensors(records []domain.RawSensorRecord) map[string]float64 {
	out := make(map[string]float64, len(records)*2)
	for _, rec := range records {
		key := MetricKey(rec)
		out[key+"Val"] = round2(rec.Value)
		out[key+"Max"] = round2(rec.Max)
	}
	return out
}

// MetricKey returns the key prefix for a record, e.g. "cpuTemp".
func MetricKey(rec domain.RawSensorRecord) string {
	return sensorCategory(rec) + firstN(rec.SensorType, 4)
}

func sensorCategory(rec domain.RawSensorRecord) string {
	if rec.Parent == ramParent {
		return "ram"
	}
	return firstN(strings.ToLower(rec.Name), 3)
}

func firstN(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
