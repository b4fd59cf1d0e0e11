package hwpulse

import (
	"github.com/ghalamif/hwpulse/internal/adapters/source/opcua"
	"github.com/ghalamif/hwpulse/internal/app/config"
	"github.com/ghalamif/hwpulse/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	ScheduleConfig  = config.ScheduleConfig
	SourcesConfig   = config.SourcesConfig
	SinkConfig      = config.SinkConfig
	InfluxConfig    = config.InfluxConfig
	TimescaleConfig = config.TimescaleConfig
	MetricsConfig   = config.MetricsConfig
	LogConfig       = config.LogConfig
	// Policy bounds the Timescale sink's point queue.
	Policy          = ports.Policy
	OPCUAConfig     = opcua.Config
	OPCUANodeConfig = opcua.NodeConfig
)

// LoadConfig reads an optional YAML file and applies environment overrides,
// including those found in envFiles.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	return config.Load(path, envFiles...)
}
