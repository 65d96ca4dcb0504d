package provider

import (
	"sync"
	"time"
)

// healthState represents the availability state of one upstream provider.
type healthState int

const (
	stateHealthy  healthState = iota
	stateCooldown             // transient failure, backing off
	stateDead                 // too many consecutive failures
)

// String returns a human-readable label for the health state.
func (s healthState) String() string {
	switch s {
	case stateHealthy:
		return "healthy"
	case stateCooldown:
		return "cooldown"
	case stateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// HealthConfig controls health tracking behavior.
type HealthConfig struct {
	// InitialBackoff is the cooldown duration after the first failure.
	// Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff duration. Default: 60s.
	MaxBackoff time.Duration

	// MaxFailures is the number of consecutive failures before the
	// provider is marked dead. Default: 5.
	MaxFailures int
}

func (c *HealthConfig) defaults() {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
}

// healthTracker monitors the availability of a single provider across
// requests. Consecutive failures push it into cooldown with exponential
// backoff, then dead after MaxFailures. Any success revives it.
type healthTracker struct {
	cfg HealthConfig

	mu              sync.Mutex
	state           healthState
	failures        int
	currentBackoff  time.Duration
	cooldownExpires time.Time

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	cfg.defaults()
	return &healthTracker{
		cfg:   cfg,
		state: stateHealthy,
		now:   time.Now,
	}
}

// IsAvailable reports whether the provider can accept requests.
// A dead provider becomes available again once its last backoff expires,
// so one probe request per backoff window can revive it.
func (h *healthTracker) IsAvailable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == stateHealthy {
		return true
	}
	return !h.now().Before(h.cooldownExpires)
}

// RecordSuccess resets the tracker to the healthy state.
func (h *healthTracker) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = stateHealthy
	h.failures = 0
	h.currentBackoff = 0
}

// RecordFailure transitions the tracker to cooldown with exponential
// backoff, or dead after MaxFailures consecutive failures.
func (h *healthTracker) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures++
	if h.currentBackoff == 0 {
		h.currentBackoff = h.cfg.InitialBackoff
	} else {
		h.currentBackoff *= 2
	}
	if h.currentBackoff > h.cfg.MaxBackoff {
		h.currentBackoff = h.cfg.MaxBackoff
	}
	h.cooldownExpires = h.now().Add(h.currentBackoff)

	if h.failures >= h.cfg.MaxFailures {
		h.state = stateDead
	} else {
		h.state = stateCooldown
	}
}

// State returns the current health state.
func (h *healthTracker) State() healthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Failures returns the current consecutive failure count.
func (h *healthTracker) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

// Status is a serializable view of one provider's health, exposed on the
// gateway health surface.
type Status struct {
	Provider  string `json:"provider"`
	State     string `json:"state"`
	Failures  int    `json:"failures"`
	Available bool   `json:"available"`

	// Probe holds the latest active probe result: "ok", or the probe
	// error. Empty when the provider does not support probing or the
	// report was built without probing.
	Probe string `json:"probe,omitempty"`
}
