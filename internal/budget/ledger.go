// Package budget tracks per-provider estimated spend against daily and
// monthly caps. Enforcement is soft: counters are fed with pre-call
// estimates, so a cap may be overshot by at most one in-flight request.
package budget

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Verdict is the outcome of a cap check.
type Verdict int

// Verdict values for Check and Reserve.
const (
	Allowed Verdict = iota
	DailyCapExceeded
	MonthlyCapExceeded
)

// String returns a human-readable label for the verdict.
func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case DailyCapExceeded:
		return "daily_cap_exceeded"
	case MonthlyCapExceeded:
		return "monthly_cap_exceeded"
	default:
		return "unknown"
	}
}

// OK reports whether the verdict admits the spend.
func (v Verdict) OK() bool { return v == Allowed }

// Caps holds the spend limits for one provider.
type Caps struct {
	// MonthlyUSD is the monthly cap. Default: 60.
	MonthlyUSD float64

	// DailyUSD overrides the derived daily cap (monthly/30) when > 0.
	DailyUSD float64
}

func (c Caps) withDefaults() Caps {
	if c.MonthlyUSD <= 0 {
		c.MonthlyUSD = 60
	}
	if c.DailyUSD <= 0 {
		c.DailyUSD = c.MonthlyUSD / 30
	}
	return c
}

// Config configures a Ledger.
type Config struct {
	// Default applies to providers without an explicit entry.
	Default Caps

	// PerProvider overrides caps for named providers.
	PerProvider map[string]Caps
}

// ProviderSpend is a serializable snapshot of one provider's counters,
// used for the health surface and for best-effort persistence.
type ProviderSpend struct {
	Provider   string  `json:"provider"`
	Day        string  `json:"day"`
	DailyUSD   float64 `json:"estimated_daily_cost"`
	Month      string  `json:"month"`
	MonthlyUSD float64 `json:"estimated_monthly_cost"`
}

// providerState holds the running counters for one provider, tagged with
// the period they apply to.
type providerState struct {
	day     string
	month   string
	daily   float64
	monthly float64
}

// Ledger is the shared spend ledger. All methods are safe for concurrent
// use; the check-and-commit sequence in Reserve runs under one lock so two
// requests racing a near-exhausted cap cannot both be admitted.
type Ledger struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	states map[string]*providerState

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// Option configures optional Ledger behavior.
type Option func(*Ledger)

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Ledger) { ld.logger = l }
}

// WithClock injects a clock for testing.
func WithClock(now func() time.Time) Option {
	return func(ld *Ledger) { ld.now = now }
}

// New creates a Ledger with zeroed counters.
func New(cfg Config, opts ...Option) *Ledger {
	cfg.Default = cfg.Default.withDefaults()
	for name, caps := range cfg.PerProvider {
		cfg.PerProvider[name] = caps.withDefaults()
	}

	l := &Ledger{
		cfg:    cfg,
		states: make(map[string]*providerState),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	return l
}

// Seed creates zeroed counters for the named providers so snapshots list
// every configured provider before any spend lands. Intended for process
// start, after New and before traffic.
func (l *Ledger) Seed(providers ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, name := range providers {
		l.state(name)
	}
}

// caps returns the effective caps for a provider.
func (l *Ledger) caps(provider string) Caps {
	if c, ok := l.cfg.PerProvider[provider]; ok {
		return c
	}
	return l.cfg.Default
}

// state returns the rolled-over state for a provider, creating it on first
// use. Caller must hold l.mu.
func (l *Ledger) state(provider string) *providerState {
	st, ok := l.states[provider]
	now := l.now()
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")

	if !ok {
		st = &providerState{day: day, month: month}
		l.states[provider] = st
		return st
	}

	// Lazy rollover: zero any counter whose period has advanced.
	if st.day != day {
		st.day = day
		st.daily = 0
	}
	if st.month != month {
		st.month = month
		st.monthly = 0
	}
	return st
}

// verdict compares counters plus a projected cost against the caps.
// Caller must hold l.mu.
func (l *Ledger) verdict(provider string, st *providerState, projected float64) Verdict {
	caps := l.caps(provider)
	if st.daily+projected > caps.DailyUSD {
		return DailyCapExceeded
	}
	if st.monthly+projected > caps.MonthlyUSD {
		return MonthlyCapExceeded
	}
	return Allowed
}

// Check compares current totals plus the projected cost against the caps.
// Pure read: it never mutates counters (beyond lazy period rollover).
func (l *Ledger) Check(provider string, projected float64) Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verdict(provider, l.state(provider), projected)
}

// Commit adds the cost to the daily and monthly counters. Designed to be
// called exactly once per call attempt; not idempotent.
func (l *Ledger) Commit(provider string, cost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(provider)
	st.daily += cost
	st.monthly += cost
}

// Reserve atomically checks the caps and, when allowed, commits the
// projected cost. This is the path used before each provider call attempt.
func (l *Ledger) Reserve(provider string, projected float64) Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(provider)
	v := l.verdict(provider, st, projected)
	if v == Allowed {
		st.daily += projected
		st.monthly += projected
	}
	return v
}

// Snapshot returns a point-in-time view of all counters, ordered by
// provider name.
func (l *Ledger) Snapshot() []ProviderSpend {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ProviderSpend, 0, len(l.states))
	for name := range l.states {
		st := l.state(name)
		out = append(out, ProviderSpend{
			Provider:   name,
			Day:        st.day,
			DailyUSD:   st.daily,
			Month:      st.month,
			MonthlyUSD: st.monthly,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Restore seeds counters from persisted state. Entries whose period has
// already rolled over are discarded. Intended for process start only.
func (l *Ledger) Restore(spends []ProviderSpend) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")

	for _, sp := range spends {
		st := l.state(sp.Provider)
		if sp.Day == day {
			st.daily = sp.DailyUSD
		}
		if sp.Month == month {
			st.monthly = sp.MonthlyUSD
		}
	}
	l.logger.Info("budget ledger restored", "providers", len(spends))
}
