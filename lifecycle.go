package kaiku

import "time"

// LifecycleState is derived fresh from (now, createdAt, score) on every
// call and never stored on the message itself.
type LifecycleState int

const (
	StateActive LifecycleState = iota
	StateHidden
	StateExpired
)

func (s LifecycleState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateHidden:
		return "hidden"
	default:
		return "expired"
	}
}

// Lifecycle computes visibility from age and score. Expiry wins over the
// score check; a Hidden message whose score is later voted back above the
// threshold becomes Active again, which is intentional.
type Lifecycle struct {
	Lifespan      time.Duration
	HideThreshold int
}

func NewLifecycle(cfg Config) Lifecycle {
	return Lifecycle{Lifespan: cfg.Lifespan, HideThreshold: cfg.HideThreshold}
}

// StateOf classifies a message at the given instant.
func (lc Lifecycle) StateOf(m Message, now time.Time) LifecycleState {
	if now.Sub(m.CreatedAt) >= lc.Lifespan {
		return StateExpired
	}
	if m.Score <= lc.HideThreshold {
		return StateHidden
	}
	return StateActive
}

// IsVisible is the single predicate every other component calls before
// including a message in any output.
func (lc Lifecycle) IsVisible(m Message, now time.Time) bool {
	return lc.StateOf(m, now) == StateActive
}

// Prune returns only the visible messages. Empty input yields empty
// output; this is a defined case, not an error.
func (lc Lifecycle) Prune(messages []Message, now time.Time) []Message {
	pruned := make([]Message, 0, len(messages))
	for _, m := range messages {
		if lc.IsVisible(m, now) {
			pruned = append(pruned, m)
		}
	}
	return pruned
}
