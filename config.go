package kaiku

import "time"

// Config holds every tunable of the engine. These are constants for a
// deployment, not runtime flags; every observed variant of lifespan,
// thresholds and resolution steps is a configuration entry here rather
// than a separate code path.
type Config struct {
	// Lifespan is the maximum age after which a message is Expired
	// regardless of score.
	Lifespan time.Duration

	// HideThreshold is the score at or below which a message becomes
	// Hidden regardless of age.
	HideThreshold int

	// Cooldown is the minimum spacing between consecutive submissions
	// by the same actor.
	Cooldown time.Duration

	// Window and WindowQuota form the rolling-window limit: at most
	// WindowQuota submissions per actor per Window.
	Window      time.Duration
	WindowQuota int

	// ObfuscationKm is the fixed perturbation magnitude applied to every
	// raw coordinate before persistence. This is the privacy floor and is
	// independent of any display zoom.
	ObfuscationKm float64

	// MaxGridPrecision caps how many decimal places SnapToGrid may keep.
	// Two decimals is ~1.1 km of latitude; requests for finer precision
	// are clamped inside the function, never by callers.
	MaxGridPrecision int

	// RemoteThresholdKm flags a message as remote when the author's true
	// location is farther than this from the message's target location.
	RemoteThresholdKm float64

	// HubMergeKm is the real-world distance under which adjacent clusters
	// are merged into hubs during aggregation.
	HubMergeKm float64

	// DistrictKm is the complete-linkage threshold for grouping hubs
	// into named districts.
	DistrictKm float64

	// PendingEchoTTL bounds how long an optimistic write is remembered
	// for self-echo suppression.
	PendingEchoTTL time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Lifespan:          48 * time.Hour,
		HideThreshold:     -5,
		Cooldown:          30 * time.Second,
		Window:            1 * time.Hour,
		WindowQuota:       20,
		ObfuscationKm:     2.0,
		MaxGridPrecision:  2,
		RemoteThresholdKm: 150,
		HubMergeKm:        5.0,
		DistrictKm:        25.0,
		PendingEchoTTL:    2 * time.Minute,
	}
}
