package domain

// LifecycleState tracks a process across ticks.
type LifecycleState string

const (
	StateNew    LifecycleState = "NEW"
	StateExists LifecycleState = "EXISTS"
	StateRIP    LifecycleState = "RIP"
)

// ProcessRecord is the per-slug output of the activity tracker.
type ProcessRecord struct {
	CPUSharePercent float64        `json:"cpu"`
	RAMPercent      float64        `json:"ram"`
	State           LifecycleState `json:"state"`
}

// Activity is the tracker output for one tick, keyed by process slug.
type Activity struct {
	Processes map[string]ProcessRecord `json:"processes"`
	Top       string                   `json:"top"`
}

// Stale returns the activity as it should be reported when the process
// query failed and the previous tick's data is reused. RIP entries were
// already emitted and NEW entries already got their baseline.
func (a Activity) Stale() Activity {
	out := Activity{
		Processes: make(map[string]ProcessRecord, len(a.Processes)),
		Top:       a.Top,
	}
	for name, rec := range a.Processes {
		switch rec.State {
		case StateRIP:
			continue
		case StateNew:
			rec.State = StateExists
		}
		out.Processes[name] = rec
	}
	return out
}
