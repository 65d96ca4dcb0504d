package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
)

// Candidate is one (provider, model tier) entry in a per-request fallback
// chain, with the projected cost of attempting it.
type Candidate struct {
	Rank          string  `json:"rank"` // primary, secondary, tertiary
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	Tier          string  `json:"tier"`
	EstimatedCost float64 `json:"estimated_cost_usd"`
}

// Candidate rank labels.
const (
	RankPrimary   = "primary"
	RankSecondary = "secondary"
	RankTertiary  = "tertiary"
)

// Attempt records one provider call attempt, success or failure.
type Attempt struct {
	Rank     string        `json:"rank"`
	Attempt  int           `json:"attempt"`
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Outcome  string        `json:"outcome"` // ok, transient_error, permanent_error, budget_rejected, skipped_unhealthy
	Error    string        `json:"error,omitempty"`
	Latency  time.Duration `json:"latency_ns,omitempty"`
}

// Attempt outcome labels.
const (
	OutcomeOK               = "ok"
	OutcomeTransientError   = "transient_error"
	OutcomePermanentError   = "permanent_error"
	OutcomeBudgetRejected   = "budget_rejected"
	OutcomeSkippedUnhealthy = "skipped_unhealthy"
)

// CallerConfig tunes the fallback caller.
type CallerConfig struct {
	// MaxRetries is the number of retries per candidate after the first
	// attempt, on transient errors only. Default: 2.
	MaxRetries int

	// RetryBackoff is the sleep before the first retry; doubled for the
	// second. Default: 500ms.
	RetryBackoff time.Duration

	// ProbeTimeout bounds each active health probe. Default: 3s.
	ProbeTimeout time.Duration

	// Health tunes the cross-request provider health trackers.
	Health HealthConfig
}

func (c *CallerConfig) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 3 * time.Second
	}
}

// Caller walks a fallback chain: per candidate, it reserves the estimated
// cost in the ledger, attempts the call with bounded retries on transient
// errors, and advances to the next candidate when retries exhaust or a
// permanent error occurs.
type Caller struct {
	cfg     CallerConfig
	clients map[string]Provider
	ledger  *budget.Ledger
	logger  *slog.Logger

	mu     sync.Mutex
	health map[string]*healthTracker

	// sleep is injectable for testing. Defaults to a ctx-aware sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// CallerOption configures optional Caller behavior.
type CallerOption func(*Caller)

// WithCallerLogger injects a structured logger.
func WithCallerLogger(l *slog.Logger) CallerOption {
	return func(c *Caller) { c.logger = l }
}

// WithSleep injects the retry sleep function for testing.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) CallerOption {
	return func(c *Caller) { c.sleep = fn }
}

// NewCaller creates a Caller over the given provider clients.
func NewCaller(clients []Provider, ledger *budget.Ledger, cfg CallerConfig, opts ...CallerOption) (*Caller, error) {
	if len(clients) == 0 {
		return nil, ErrNoProvider
	}
	cfg.defaults()

	byName := make(map[string]Provider, len(clients))
	health := make(map[string]*healthTracker, len(clients))
	for _, p := range clients {
		if p == nil {
			return nil, fmt.Errorf("%w: nil client", ErrNoProvider)
		}
		byName[p.Name()] = p
		health[p.Name()] = newHealthTracker(cfg.Health)
	}

	c := &Caller{
		cfg:     cfg,
		clients: byName,
		ledger:  ledger,
		health:  health,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// Client returns the client registered under the given provider name.
func (c *Caller) Client(name string) (Provider, bool) {
	p, ok := c.clients[name]
	return p, ok
}

// HealthReport returns the current health of every registered provider.
func (c *Caller) HealthReport() []Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Status, 0, len(c.health))
	for name, h := range c.health {
		out = append(out, Status{
			Provider:  name,
			State:     h.State().String(),
			Failures:  h.Failures(),
			Available: h.IsAvailable(),
		})
	}
	return out
}

// Probe actively checks every provider whose client supports probing and
// merges the results into the health report. Probes run concurrently, each
// bounded by ProbeTimeout. Results are observational: a failed probe marks
// the provider unavailable in the report but does not feed the backoff
// trackers, so a flaky health endpoint cannot push a live provider into
// cooldown. Completion traffic alone drives tracker state.
func (c *Caller) Probe(ctx context.Context) []Status {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]error)
	)
	for name, client := range c.clients {
		hc, ok := client.(HealthChecker)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(name string, hc HealthChecker) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
			defer cancel()
			err := hc.HealthCheck(probeCtx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}(name, hc)
	}
	wg.Wait()

	report := c.HealthReport()
	for i := range report {
		err, probed := results[report[i].Provider]
		switch {
		case !probed:
		case err == nil:
			report[i].Probe = "ok"
		default:
			report[i].Probe = err.Error()
			report[i].Available = false
		}
	}
	return report
}

// Call walks the chain and returns the first successful response along with
// the candidate that produced it and the full attempt log. The estimated
// cost is reserved in the ledger before every attempt; reservations are
// never rolled back, even on failure or caller cancellation, since the
// cost is incurred at the provider regardless.
func (c *Caller) Call(ctx context.Context, chain []Candidate, req CompletionRequest) (CompletionResponse, Candidate, []Attempt, error) {
	if len(chain) == 0 {
		return CompletionResponse{}, Candidate{}, nil, ErrNoProvider
	}

	var attempts []Attempt
	var lastErr error

	for _, cand := range chain {
		client, ok := c.clients[cand.Provider]
		if !ok {
			lastErr = fmt.Errorf("%w: %q", ErrNoProvider, cand.Provider)
			continue
		}

		tracker := c.tracker(cand.Provider)
		if !tracker.IsAvailable() {
			attempts = append(attempts, Attempt{
				Rank:     cand.Rank,
				Provider: cand.Provider,
				Model:    cand.Model,
				Outcome:  OutcomeSkippedUnhealthy,
			})
			continue
		}

		resp, tried, err := c.callCandidate(ctx, client, tracker, cand, req)
		attempts = append(attempts, tried...)
		if err == nil {
			return resp, cand, attempts, nil
		}
		if ctx.Err() != nil {
			return CompletionResponse{}, Candidate{}, attempts, ctx.Err()
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no usable candidate in chain")
	}
	c.logger.Error("fallback chain exhausted",
		"candidates", len(chain),
		"attempts", len(attempts),
		"last_error", lastErr,
	)
	return CompletionResponse{}, Candidate{}, attempts, fmt.Errorf("%w: last error: %w", ErrAllCandidates, lastErr)
}

// callCandidate runs up to 1+MaxRetries attempts against one candidate.
func (c *Caller) callCandidate(ctx context.Context, client Provider, tracker *healthTracker, cand Candidate, req CompletionRequest) (CompletionResponse, []Attempt, error) {
	var attempts []Attempt
	var lastErr error

	req.Model = cand.Model

	for n := 1; n <= 1+c.cfg.MaxRetries; n++ {
		if err := ctx.Err(); err != nil {
			return CompletionResponse{}, attempts, err
		}

		// Spend is committed per attempt: the estimate is charged even
		// when the call fails, since cost is incurred at the provider.
		if v := c.ledger.Reserve(cand.Provider, cand.EstimatedCost); !v.OK() {
			attempts = append(attempts, Attempt{
				Rank:     cand.Rank,
				Attempt:  n,
				Provider: cand.Provider,
				Model:    cand.Model,
				Outcome:  OutcomeBudgetRejected,
				Error:    v.String(),
			})
			return CompletionResponse{}, attempts, fmt.Errorf("budget %s for %q", v, cand.Provider)
		}

		start := time.Now()
		resp, err := client.Complete(ctx, req)
		latency := time.Since(start)

		if err == nil {
			tracker.RecordSuccess()
			attempts = append(attempts, Attempt{
				Rank:     cand.Rank,
				Attempt:  n,
				Provider: cand.Provider,
				Model:    cand.Model,
				Outcome:  OutcomeOK,
				Latency:  latency,
			})
			return resp, attempts, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return CompletionResponse{}, attempts, ctx.Err()
		}

		outcome := OutcomeTransientError
		if IsPermanent(err) {
			outcome = OutcomePermanentError
		}
		attempts = append(attempts, Attempt{
			Rank:     cand.Rank,
			Attempt:  n,
			Provider: cand.Provider,
			Model:    cand.Model,
			Outcome:  outcome,
			Error:    sanitizeError(err),
			Latency:  latency,
		})
		tracker.RecordFailure()

		// Permanent errors skip the retry budget entirely.
		if IsPermanent(err) || !IsTransient(err) {
			c.logger.Warn("permanent provider error, advancing chain",
				"provider", cand.Provider,
				"model", cand.Model,
				"error", err,
			)
			return CompletionResponse{}, attempts, err
		}

		c.logger.Warn("transient provider error",
			"provider", cand.Provider,
			"model", cand.Model,
			"attempt", n,
			"error", err,
		)

		if n <= c.cfg.MaxRetries {
			backoff := c.cfg.RetryBackoff * time.Duration(1<<(n-1))
			if err := c.sleep(ctx, backoff); err != nil {
				return CompletionResponse{}, attempts, err
			}
		}
	}

	return CompletionResponse{}, attempts, lastErr
}

func (c *Caller) tracker(provider string) *healthTracker {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.health[provider]
	if !ok {
		h = newHealthTracker(c.cfg.Health)
		c.health[provider] = h
	}
	return h
}

// sanitizeError truncates error text for the attempt log so oversized
// upstream bodies never bloat journals.
func sanitizeError(err error) string {
	const maxLen = 200
	s := err.Error()
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
