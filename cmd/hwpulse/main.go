package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/ghalamif/hwpulse"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:], os.Stdout)
	case "stats":
		err = statsCommand(os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		printUsage(os.Stderr)
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "hwpulse %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runCommand(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", "", "Path to an optional YAML configuration file")
	envFile := fs.String("env-file", ".env", "Dotenv file with INFLUX_* and HWPULSE_* overrides")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := hwpulse.LoadConfig(*cfgPath, *envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := hwpulse.NewRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	return rt.Run(ctx)
}

func validateCommand(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	cfgPath := fs.StringP("config", "c", "", "Path to configuration file to validate")
	envFile := fs.String("env-file", ".env", "Dotenv file to apply before validating")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := hwpulse.LoadConfig(*cfgPath, *envFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "config ok: sensors=%s processes=%s sink=%s writes=%t interval=%s window=%d\n",
		cfg.Sources.Sensor, cfg.Sources.Process, cfg.Sink.Kind, cfg.Sink.WriteEnabled,
		cfg.Schedule.Interval, cfg.Schedule.WindowCapacity)
	return nil
}

func statsCommand(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("stats", pflag.ExitOnError)
	base := fs.String("url", "http://localhost:9100", "Base URL of a running hwpulse instance")
	interval := fs.DurationP("interval", "i", 5*time.Second, "Refresh interval")
	once := fs.Bool("once", false, "Print a single line and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	root := strings.TrimRight(*base, "/")
	if *once {
		return printStats(client, root, out)
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Fprintf(out, "Streaming stats from %s (Ctrl+C to stop)\n", root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printStats(client, root, out); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsCounters = []string{
	"hwpulse_ticks_total",
	"hwpulse_points_forwarded_total",
	"hwpulse_tracked_processes",
}

func printStats(client *http.Client, root string, out io.Writer) error {
	counters, err := scrapeCounters(client, root+"/metrics")
	if err != nil {
		return err
	}

	resp, err := client.Get(root + "/api/snapshot")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var snap hwpulse.Snapshot
	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
	case http.StatusServiceUnavailable:
	default:
		return fmt.Errorf("snapshot: unexpected status %s", resp.Status)
	}

	fmt.Fprintf(out, "[%s] ticks=%.0f forwarded=%.0f processes=%.0f top=%q %s\n",
		time.Now().Format(time.RFC3339),
		counters["hwpulse_ticks_total"],
		counters["hwpulse_points_forwarded_total"],
		counters["hwpulse_tracked_processes"],
		snap.Sample.TopProcessName,
		formatValues(snap.Sample.Values),
	)
	return nil
}

func scrapeCounters(client *http.Client, url string) (map[string]float64, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics: unexpected status %s", resp.Status)
	}

	out := make(map[string]float64, len(statsCounters))
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range statsCounters {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					out[key] = value
				}
			}
		}
	}
	return out, scanner.Err()
}

func formatValues(values map[string]float64) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.HasSuffix(k, "Val") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, values[k])
	}
	return strings.Join(parts, " ")
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `HWPulse CLI

Usage:
  hwpulse <command> [flags]

Commands:
  run        Sample sensors and processes on a schedule and forward them
  validate   Load and validate configuration without starting the sampler
  stats      Poll a running instance and print counters and current values

Examples:
  hwpulse run --config ./hwpulse.yaml
  hwpulse validate --env-file ./.env
  hwpulse stats --url http://localhost:9100 -i 2s
`)
}
