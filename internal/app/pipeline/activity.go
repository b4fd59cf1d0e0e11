package pipeline

import (
	"errors"
	"sort"
	"strings"

	"github.com/gosimple/slug"

	"github.com/ghalamif/hwpulse/internal/domain"
)

// ErrLogicalCPUsUnknown is returned when process shares are requested before
// the logical processor count has been acquired.
var ErrLogicalCPUsUnknown = errors.New("logical processor count unknown")

// pseudoProcesses are aggregate counters reported alongside real processes.
var pseudoProcesses = map[string]struct{}{
	"idle":   {},
	"_total": {},
}

// KnownSet holds the process slugs observed on the previous tick.
type KnownSet map[string]struct{}

// Names returns the slugs in sorted order.
func (k KnownSet) Names() []string {
	out := make([]string, 0, len(k))
	for name := range k {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TrackActivity diffs the processes observed this tick against the ones
// known from the previous tick. It returns the per-slug records (including
// RIP records for processes that vanished) and the known set to carry into
// the next tick. It does not touch prev.
func TrackActivity(prev KnownSet, observations []domain.ProcessObservation, logicalCPUs int) (domain.Activity, KnownSet, error) {
	if logicalCPUs <= 0 {
		return domain.Activity{}, prev, ErrLogicalCPUsUnknown
	}

	activity := domain.Activity{
		Processes: make(map[string]domain.ProcessRecord, len(observations)+len(prev)),
	}
	next := make(KnownSet, len(observations))

	var topCPU float64
	for _, o := range observations {
		if _, skip := pseudoProcesses[strings.ToLower(o.InstanceName)]; skip {
			continue
		}
		if o.CPUTimePercent <= 0 {
			continue
		}
		name := ProcessSlug(o.InstanceName)
		if name == "" {
			continue
		}

		state := domain.StateNew
		if _, ok := prev[name]; ok {
			state = domain.StateExists
		}
		activity.Processes[name] = domain.ProcessRecord{
			CPUSharePercent: round2(o.CPUTimePercent / float64(logicalCPUs)),
			State:           state,
		}
		next[name] = struct{}{}

		if o.CPUTimePercent > topCPU {
			topCPU = o.CPUTimePercent
			activity.Top = name
		}
	}

	for name := range prev {
		if _, ok := next[name]; ok {
			continue
		}
		activity.Processes[name] = domain.ProcessRecord{State: domain.StateRIP}
	}

	return activity, next, nil
}

// ProcessSlug turns a raw instance name such as "Chrome.exe" into a
// lowercase, separator-safe identifier ("chrome-exe").
func ProcessSlug(instance string) string {
	return slug.Make(instance)
}
