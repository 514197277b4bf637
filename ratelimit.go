package kaiku

import (
	"sync"
	"time"
)

// Verdict is the result of a rate limit check. When not allowed,
// RetryAfter is the exact timestamp after which the next attempt is
// admissible.
type Verdict struct {
	Allowed    bool
	RetryAfter time.Time
}

// RateLimiter tracks per-actor submission times and composes two
// independent limits: a short cooldown between consecutive submissions and
// a rolling-window quota. Rejections never record, so a denied attempt
// neither consumes quota nor extends the cooldown.
type RateLimiter struct {
	Cooldown time.Duration
	Window   time.Duration
	Quota    int

	mu          sync.Mutex
	lastAllowed map[ActorID]time.Time
	history     map[ActorID][]time.Time
}

func NewRateLimiter(cfg Config) *RateLimiter {
	return &RateLimiter{
		Cooldown:    cfg.Cooldown,
		Window:      cfg.Window,
		Quota:       cfg.WindowQuota,
		lastAllowed: make(map[ActorID]time.Time),
		history:     make(map[ActorID][]time.Time),
	}
}

// CheckAndRecord admits or rejects a submission at the given instant.
// A submission exactly at last+Cooldown (or at windowStart+Window) is
// admissible; one instant earlier is not. When both limits bind, the later
// RetryAfter wins.
func (r *RateLimiter) CheckAndRecord(actor ActorID, now time.Time) Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()

	var retryAfter time.Time

	if last, ok := r.lastAllowed[actor]; ok {
		if now.Sub(last) < r.Cooldown {
			retryAfter = last.Add(r.Cooldown)
		}
	}

	// Evict entries that have aged out of the window, then check quota.
	kept := r.history[actor][:0]
	for _, ts := range r.history[actor] {
		if now.Sub(ts) < r.Window {
			kept = append(kept, ts)
		}
	}
	r.history[actor] = kept

	if len(kept) >= r.Quota {
		windowRetry := kept[0].Add(r.Window)
		if windowRetry.After(retryAfter) {
			retryAfter = windowRetry
		}
	}

	if !retryAfter.IsZero() {
		return Verdict{Allowed: false, RetryAfter: retryAfter}
	}

	r.lastAllowed[actor] = now
	r.history[actor] = append(r.history[actor], now)
	return Verdict{Allowed: true}
}

// Cleanup removes actors whose entire history has aged out, preventing
// unbounded growth. Call periodically from maintenance.
func (r *RateLimiter) Cleanup(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for actor, timestamps := range r.history {
		var valid []time.Time
		for _, ts := range timestamps {
			if now.Sub(ts) < r.Window {
				valid = append(valid, ts)
			}
		}
		if len(valid) == 0 {
			delete(r.history, actor)
			if last, ok := r.lastAllowed[actor]; ok && now.Sub(last) >= r.Cooldown {
				delete(r.lastAllowed, actor)
			}
		} else {
			r.history[actor] = valid
		}
	}
}
