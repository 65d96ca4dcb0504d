package provider

import (
	"testing"
	"time"
)

func trackerAt(t *testing.T, cfg HealthConfig, now *time.Time) *healthTracker {
	t.Helper()
	h := newHealthTracker(cfg)
	h.now = func() time.Time { return *now }
	return h
}

func TestHealthTracker_BackoffDoubles(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := trackerAt(t, HealthConfig{InitialBackoff: time.Second, MaxBackoff: 60 * time.Second, MaxFailures: 5}, &now)

	h.RecordFailure()
	if h.State() != stateCooldown {
		t.Fatalf("state = %v, want cooldown", h.State())
	}
	if h.IsAvailable() {
		t.Fatal("available immediately after failure")
	}

	// First backoff is 1s.
	now = now.Add(time.Second)
	if !h.IsAvailable() {
		t.Fatal("not available after initial backoff expired")
	}

	// Second failure doubles to 2s.
	h.RecordFailure()
	now = now.Add(time.Second)
	if h.IsAvailable() {
		t.Fatal("available after 1s, backoff should be 2s")
	}
	now = now.Add(time.Second)
	if !h.IsAvailable() {
		t.Fatal("not available after doubled backoff expired")
	}
}

func TestHealthTracker_BackoffCapped(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := trackerAt(t, HealthConfig{InitialBackoff: time.Second, MaxBackoff: 4 * time.Second, MaxFailures: 100}, &now)

	for range 10 {
		h.RecordFailure()
	}
	if h.currentBackoff != 4*time.Second {
		t.Errorf("backoff = %v, want capped at 4s", h.currentBackoff)
	}
}

func TestHealthTracker_DeadAfterMaxFailures(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := trackerAt(t, HealthConfig{InitialBackoff: time.Second, MaxBackoff: 60 * time.Second, MaxFailures: 3}, &now)

	h.RecordFailure()
	h.RecordFailure()
	if h.State() != stateCooldown {
		t.Fatalf("state after 2 failures = %v, want cooldown", h.State())
	}
	h.RecordFailure()
	if h.State() != stateDead {
		t.Fatalf("state after 3 failures = %v, want dead", h.State())
	}

	// Dead providers still get one probe per backoff window.
	now = now.Add(5 * time.Second)
	if !h.IsAvailable() {
		t.Error("dead provider not available for probe after backoff")
	}
}

func TestHealthTracker_SuccessRevives(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	h := trackerAt(t, HealthConfig{InitialBackoff: time.Hour, MaxBackoff: time.Hour, MaxFailures: 2}, &now)

	h.RecordFailure()
	h.RecordFailure()
	if h.State() != stateDead {
		t.Fatalf("state = %v, want dead", h.State())
	}

	h.RecordSuccess()
	if h.State() != stateHealthy || h.Failures() != 0 || !h.IsAvailable() {
		t.Errorf("after success: state=%v failures=%d available=%v", h.State(), h.Failures(), h.IsAvailable())
	}
}
