package ports

// WindowBuffer keeps a bounded, oldest-first history per metric key.
type WindowBuffer interface {
	Append(key string, v float64)
	Window(key string) []float64
	Snapshot() map[string][]float64
	Len() int
}
