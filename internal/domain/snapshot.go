package domain

// Snapshot is what the scheduler publishes after each tick for readers
// outside the tick loop. It owns its maps.
type Snapshot struct {
	Sample   Sample               `json:"sysStats"`
	Activity Activity             `json:"processorActivity"`
	Windows  map[string][]float64 `json:"dataPoints"`
}
