package ports

import "time"

// Policy bounds the buffering done by sinks that batch on their own.
type Policy struct {
	MaxQueueLen   int           `yaml:"max_queue_len"`
	MaxBatchSize  int           `yaml:"max_batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`

	OnQueueFull string `yaml:"on_queue_full"` // "drop_oldest", "reject"
}
