package domain

import "time"

// Point is a named, tagged set of float fields submitted to the sink.
type Point struct {
	Measurement string             `json:"measurement"`
	Tags        map[string]string  `json:"tags,omitempty"`
	Fields      map[string]float64 `json:"fields"`
	Timestamp   time.Time          `json:"ts"`
}
