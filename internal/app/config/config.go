package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/hwpulse/internal/adapters/source/opcua"
	"github.com/ghalamif/hwpulse/internal/ports"
)

const (
	SinkInflux    = "influx"
	SinkTimescale = "timescale"

	SourceWMI    = "wmi"
	SourceNative = "native"
	SourceOPCUA  = "opcua"
)

type Config struct {
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Sources   SourcesConfig   `yaml:"sources"`
	Sink      SinkConfig      `yaml:"sink"`
	Influx    InfluxConfig    `yaml:"influx"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Policy    ports.Policy    `yaml:"policy"`
	OPCUA     opcua.Config    `yaml:"opcua"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

type ScheduleConfig struct {
	InitialDelay    time.Duration `yaml:"initial_delay"`
	Interval        time.Duration `yaml:"interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	WindowCapacity  int           `yaml:"window_capacity"`
}

type SourcesConfig struct {
	Sensor  string `yaml:"sensor"`
	Process string `yaml:"process"`
}

type SinkConfig struct {
	Kind         string `yaml:"kind"`
	WriteEnabled bool   `yaml:"write_enabled"`
	HostTag      string `yaml:"host_tag"`
}

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the optional YAML file at path, then applies overrides from the
// process environment and from envFiles (process environment wins). Missing
// env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	dotenv, err := readEnvFiles(envFiles)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return map[string]string{}, nil
	}
	env, err := godotenv.Read(existing...)
	if err != nil {
		return nil, fmt.Errorf("read env files: %w", err)
	}
	return env, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("INFLUX_URL", &c.Influx.URL)
	str("INFLUX_TOKEN", &c.Influx.Token)
	str("INFLUX_ORG", &c.Influx.Org)
	str("INFLUX_BUCKET", &c.Influx.Bucket)
	str("INFLUX_TAG_HOSTNAME", &c.Sink.HostTag)
	str("HWPULSE_SINK", &c.Sink.Kind)
	str("HWPULSE_TIMESCALE_CONN", &c.Timescale.ConnString)
	str("HWPULSE_TIMESCALE_TABLE", &c.Timescale.Table)
	str("HWPULSE_SENSOR_SOURCE", &c.Sources.Sensor)
	str("HWPULSE_PROCESS_SOURCE", &c.Sources.Process)
	str("HWPULSE_METRICS_ADDR", &c.Metrics.Addr)
	str("HWPULSE_LOG_LEVEL", &c.Log.Level)
	str("HWPULSE_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("INFLUX_WRITE_ENABLED"); ok {
		c.Sink.WriteEnabled = parseEnabled(v)
	}

	var errs []error
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	dur("HWPULSE_INITIAL_DELAY", &c.Schedule.InitialDelay)
	dur("HWPULSE_INTERVAL", &c.Schedule.Interval)

	if v, ok := lookup("HWPULSE_WINDOW_CAPACITY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("HWPULSE_WINDOW_CAPACITY: %w", err))
		} else {
			c.Schedule.WindowCapacity = n
		}
	}
	return errors.Join(errs...)
}

// parseEnabled treats any non-empty value other than a recognised false as
// enabled.
func parseEnabled(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

func (c *Config) applyDefaults() {
	if c.Schedule.InitialDelay == 0 {
		c.Schedule.InitialDelay = time.Second
	}
	if c.Schedule.Interval == 0 {
		c.Schedule.Interval = 5 * time.Second
	}
	if c.Schedule.ShutdownTimeout == 0 {
		c.Schedule.ShutdownTimeout = 5 * time.Second
	}
	if c.Schedule.WindowCapacity == 0 {
		c.Schedule.WindowCapacity = 10
	}
	if c.Sources.Sensor == "" {
		c.Sources.Sensor = SourceWMI
	}
	if c.Sources.Process == "" {
		c.Sources.Process = SourceWMI
	}
	if c.Sink.Kind == "" {
		c.Sink.Kind = SinkInflux
	}
	if c.Timescale.Table == "" {
		c.Timescale.Table = "hw_points"
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.FlushInterval == 0 {
		c.Policy.FlushInterval = time.Second
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "drop_oldest"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Sources.Sensor == SourceOPCUA {
		c.OPCUA.ApplyDefaults()
	}
}

func (c *Config) validate() error {
	if c.Schedule.InitialDelay < 0 {
		return fmt.Errorf("schedule.initial_delay must not be negative")
	}
	if c.Schedule.Interval < 0 {
		return fmt.Errorf("schedule.interval must be positive")
	}
	if c.Schedule.WindowCapacity < 0 {
		return fmt.Errorf("schedule.window_capacity must be positive")
	}

	switch c.Sources.Sensor {
	case SourceWMI, SourceNative:
	case SourceOPCUA:
		if err := c.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	default:
		return fmt.Errorf("unknown sensor source %q", c.Sources.Sensor)
	}
	switch c.Sources.Process {
	case SourceWMI, SourceNative:
	default:
		return fmt.Errorf("unknown process source %q", c.Sources.Process)
	}

	switch c.Policy.OnQueueFull {
	case "drop_oldest", "reject":
	default:
		return fmt.Errorf("policy.on_queue_full must be drop_oldest or reject, got %q", c.Policy.OnQueueFull)
	}

	switch c.Sink.Kind {
	case SinkInflux:
		if c.Sink.WriteEnabled {
			var missing []string
			if c.Influx.URL == "" {
				missing = append(missing, "INFLUX_URL")
			}
			if c.Influx.Token == "" {
				missing = append(missing, "INFLUX_TOKEN")
			}
			if c.Influx.Org == "" {
				missing = append(missing, "INFLUX_ORG")
			}
			if c.Influx.Bucket == "" {
				missing = append(missing, "INFLUX_BUCKET")
			}
			if len(missing) > 0 {
				return fmt.Errorf("influx sink enabled but %s not set", strings.Join(missing, ", "))
			}
		}
	case SinkTimescale:
		if c.Sink.WriteEnabled && c.Timescale.ConnString == "" {
			return fmt.Errorf("timescale.conn_string is required")
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Sink.Kind)
	}

	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	return nil
}
