package domain

import "time"

// RawSensorRecord is one observation from the hardware sensor source.
type RawSensorRecord struct {
	Parent     string  `json:"Parent"`
	Name       string  `json:"Name"`
	SensorType string  `json:"SensorType"`
	Value      float64 `json:"Value"`
	Max        float64 `json:"Max"`
	Min        float64 `json:"Min"`
}

// ProcessObservation is the raw CPU reading for one process instance.
// CPUTimePercent is scaled per logical core and may exceed 100.
type ProcessObservation struct {
	InstanceName   string  `json:"Name"`
	CPUTimePercent float64 `json:"PercentProcessorTime"`
}

// Sample is the normalized result of one tick. Only Values are appended to
// the rolling windows; DateTime and TopProcessName describe the latest tick
// and are not windowed.
type Sample struct {
	DateTime       time.Time          `json:"dateTime"`
	TopProcessName string             `json:"topProcessName"`
	Values         map[string]float64 `json:"values"`
}
