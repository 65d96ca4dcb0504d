package provider_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider/providertest"
)

func okProvider(name string) *providertest.MockProvider {
	return &providertest.MockProvider{
		NameValue: name,
		CompleteFunc: func(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: name, FinishReason: provider.FinishReasonStop}, nil
		},
	}
}

func failProvider(name string, err error) *providertest.MockProvider {
	return &providertest.MockProvider{
		NameValue: name,
		CompleteFunc: func(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{}, err
		},
	}
}

func openLedger() *budget.Ledger {
	return budget.New(budget.Config{Default: budget.Caps{MonthlyUSD: 1_000_000}})
}

func noSleep() provider.CallerOption {
	return provider.WithSleep(func(_ context.Context, _ time.Duration) error { return nil })
}

func chainOf(cands ...provider.Candidate) []provider.Candidate { return cands }

func cand(rank, name, model string) provider.Candidate {
	return provider.Candidate{Rank: rank, Provider: name, Model: model, Tier: "CHEAP_CHAT", EstimatedCost: 0.001}
}

func TestCaller_PrimarySucceeds(t *testing.T) {
	primary := okProvider("a")
	c, err := provider.NewCaller([]provider.Provider{primary, okProvider("b")}, openLedger(), provider.CallerConfig{}, noSleep())
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}

	resp, winner, attempts, err := c.Call(context.Background(), chainOf(
		cand(provider.RankPrimary, "a", "model-a"),
		cand(provider.RankSecondary, "b", "model-b"),
	), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Content != "a" || winner.Provider != "a" {
		t.Errorf("winner = %q (content %q), want a", winner.Provider, resp.Content)
	}
	if len(attempts) != 1 || attempts[0].Outcome != provider.OutcomeOK {
		t.Errorf("attempts = %+v, want one ok", attempts)
	}
	if primary.Last().Model != "model-a" {
		t.Errorf("request model = %q, want model-a", primary.Last().Model)
	}
}

func TestCaller_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	flaky := &providertest.MockProvider{
		NameValue: "a",
		CompleteFunc: func(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			calls++
			if calls < 3 {
				return provider.CompletionResponse{}, fmt.Errorf("%w: 429", provider.ErrRateLimit)
			}
			return provider.CompletionResponse{Content: "ok"}, nil
		},
	}

	var slept []time.Duration
	c, err := provider.NewCaller([]provider.Provider{flaky}, openLedger(),
		provider.CallerConfig{MaxRetries: 2, RetryBackoff: 100 * time.Millisecond},
		provider.WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}))
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}

	resp, _, attempts, err := c.Call(context.Background(), chainOf(cand(provider.RankPrimary, "a", "m")), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(attempts))
	}

	// Backoff doubles between retries.
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(slept) != 2 || slept[0] != want[0] || slept[1] != want[1] {
		t.Errorf("backoffs = %v, want %v", slept, want)
	}
}

func TestCaller_TransientExhaustAdvances(t *testing.T) {
	primary := failProvider("a", fmt.Errorf("%w: down", provider.ErrProviderDown))
	secondary := okProvider("b")
	c, err := provider.NewCaller([]provider.Provider{primary, secondary}, openLedger(), provider.CallerConfig{}, noSleep())
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}

	_, winner, attempts, err := c.Call(context.Background(), chainOf(
		cand(provider.RankPrimary, "a", "m1"),
		cand(provider.RankSecondary, "b", "m2"),
	), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if winner.Provider != "b" {
		t.Errorf("winner = %q, want b", winner.Provider)
	}
	// 1 + MaxRetries(2) failed attempts on primary, then one success.
	if primary.Calls() != 3 {
		t.Errorf("primary calls = %d, want 3", primary.Calls())
	}
	if got := attempts[len(attempts)-1].Outcome; got != provider.OutcomeOK {
		t.Errorf("final outcome = %q, want ok", got)
	}
}

func TestCaller_PermanentErrorSkipsRetries(t *testing.T) {
	primary := failProvider("a", fmt.Errorf("%w: bad key", provider.ErrAuthentication))
	secondary := okProvider("b")
	c, err := provider.NewCaller([]provider.Provider{primary, secondary}, openLedger(), provider.CallerConfig{}, noSleep())
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}

	_, winner, attempts, err := c.Call(context.Background(), chainOf(
		cand(provider.RankPrimary, "a", "m1"),
		cand(provider.RankSecondary, "b", "m2"),
	), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if winner.Provider != "b" {
		t.Errorf("winner = %q, want b", winner.Provider)
	}
	if primary.Calls() != 1 {
		t.Errorf("primary calls = %d, want 1 (no retries on permanent errors)", primary.Calls())
	}
	if attempts[0].Outcome != provider.OutcomePermanentError {
		t.Errorf("first outcome = %q, want permanent_error", attempts[0].Outcome)
	}
}

func TestCaller_BudgetRejectionAdvances(t *testing.T) {
	// Tight per-provider cap starves "a"; "b" is unlimited.
	ledger := budget.New(budget.Config{
		Default: budget.Caps{MonthlyUSD: 1_000_000},
		PerProvider: map[string]budget.Caps{
			"a": {MonthlyUSD: 0.03, DailyUSD: 0.000001},
		},
	})
	primary := okProvider("a")
	c, err := provider.NewCaller([]provider.Provider{primary, okProvider("b")}, ledger, provider.CallerConfig{}, noSleep())
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}

	_, winner, attempts, err := c.Call(context.Background(), chainOf(
		cand(provider.RankPrimary, "a", "m1"),
		cand(provider.RankSecondary, "b", "m2"),
	), provider.CompletionRequest{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if winner.Provider != "b" {
		t.Errorf("winner = %q, want b", winner.Provider)
	}
	if primary.Calls() != 0 {
		t.Errorf("primary was called %d times despite budget rejection", primary.Calls())
	}
	if attempts[0].Outcome != provider.OutcomeBudgetRejected {
		t.Errorf("first outcome = %q, want budget_rejected", attempts[0].Outcome)
	}
}

func TestCaller_AllCandidatesFail(t *testing.T) {
	c, err := provider.NewCaller([]provider.Provider{
		failProvider("a", fmt.Errorf("%w: down", provider.ErrProviderDown)),
		failProvider("b", fmt.Errorf("%w: down", provider.ErrProviderDown)),
	}, openLedger(), provider.CallerConfig{MaxRetries: 1}, noSleep())
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}

	_, _, _, err = c.Call(context.Background(), chainOf(
		cand(provider.RankPrimary, "a", "m1"),
		cand(provider.RankSecondary, "b", "m2"),
	), provider.CompletionRequest{})
	if !errors.Is(err, provider.ErrAllCandidates) {
		t.Fatalf("err = %v, want ErrAllCandidates", err)
	}
}

func TestCaller_EmptyChain(t *testing.T) {
	c, err := provider.NewCaller([]provider.Provider{okProvider("a")}, openLedger(), provider.CallerConfig{}, noSleep())
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}
	if _, _, _, err := c.Call(context.Background(), nil, provider.CompletionRequest{}); !errors.Is(err, provider.ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestCaller_ContextCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &providertest.MockProvider{
		NameValue: "a",
		CompleteFunc: func(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
			cancel()
			return provider.CompletionResponse{}, fmt.Errorf("%w: 429", provider.ErrRateLimit)
		},
	}
	secondary := okProvider("b")
	c, err := provider.NewCaller([]provider.Provider{primary, secondary}, openLedger(), provider.CallerConfig{}, noSleep())
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}

	_, _, _, err = c.Call(ctx, chainOf(
		cand(provider.RankPrimary, "a", "m1"),
		cand(provider.RankSecondary, "b", "m2"),
	), provider.CompletionRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if secondary.Calls() != 0 {
		t.Error("secondary called after cancellation")
	}
}

func TestCaller_UnhealthySkipped(t *testing.T) {
	down := failProvider("a", fmt.Errorf("%w: down", provider.ErrProviderDown))
	backup := okProvider("b")
	c, err := provider.NewCaller([]provider.Provider{down, backup}, openLedger(),
		provider.CallerConfig{
			MaxRetries: 1,
			Health:     provider.HealthConfig{InitialBackoff: time.Hour, MaxFailures: 5},
		}, noSleep())
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}

	chain := chainOf(
		cand(provider.RankPrimary, "a", "m1"),
		cand(provider.RankSecondary, "b", "m2"),
	)

	// First call fails over and puts "a" into cooldown.
	if _, winner, _, err := c.Call(context.Background(), chain, provider.CompletionRequest{}); err != nil || winner.Provider != "b" {
		t.Fatalf("first call winner = %q err = %v", winner.Provider, err)
	}
	callsAfterFirst := down.Calls()

	// Second call must skip "a" entirely while it cools down.
	_, winner, attempts, err := c.Call(context.Background(), chain, provider.CompletionRequest{})
	if err != nil || winner.Provider != "b" {
		t.Fatalf("second call winner = %q err = %v", winner.Provider, err)
	}
	if down.Calls() != callsAfterFirst {
		t.Errorf("unhealthy provider was called again (%d -> %d)", callsAfterFirst, down.Calls())
	}
	if attempts[0].Outcome != provider.OutcomeSkippedUnhealthy {
		t.Errorf("first outcome = %q, want skipped_unhealthy", attempts[0].Outcome)
	}
}

func TestCaller_HealthReport(t *testing.T) {
	c, err := provider.NewCaller([]provider.Provider{okProvider("a"), okProvider("b")}, openLedger(), provider.CallerConfig{}, noSleep())
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}

	report := c.HealthReport()
	if len(report) != 2 {
		t.Fatalf("report length = %d, want 2", len(report))
	}
	for _, st := range report {
		if !st.Available || st.State != "healthy" {
			t.Errorf("provider %q = %+v, want healthy and available", st.Provider, st)
		}
	}
}

func TestCaller_ProbeReportsPerProvider(t *testing.T) {
	up := okProvider("up")
	down := okProvider("down")
	down.HealthCheckFunc = func(context.Context) error {
		return errors.New("connection refused")
	}

	c, err := provider.NewCaller([]provider.Provider{up, down}, openLedger(), provider.CallerConfig{}, noSleep())
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}

	byName := make(map[string]provider.Status)
	for _, st := range c.Probe(context.Background()) {
		byName[st.Provider] = st
	}

	if st := byName["up"]; st.Probe != "ok" || !st.Available {
		t.Errorf("up = %+v, want probe ok and available", st)
	}
	if st := byName["down"]; st.Probe != "connection refused" || st.Available {
		t.Errorf("down = %+v, want probe error and unavailable", st)
	}
}

func TestCaller_ProbeTimeoutBounds(t *testing.T) {
	slow := okProvider("slow")
	slow.HealthCheckFunc = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	c, err := provider.NewCaller([]provider.Provider{slow}, openLedger(),
		provider.CallerConfig{ProbeTimeout: 20 * time.Millisecond}, noSleep())
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}

	start := time.Now()
	report := c.Probe(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("probe took %v, want bounded by timeout", elapsed)
	}
	if report[0].Probe == "" || report[0].Probe == "ok" {
		t.Errorf("probe = %q, want a timeout error", report[0].Probe)
	}
	if report[0].Available {
		t.Error("timed-out provider reported available")
	}
}

func TestCaller_ProbeDoesNotTouchTrackers(t *testing.T) {
	flaky := okProvider("flaky")
	flaky.HealthCheckFunc = func(context.Context) error {
		return errors.New("probe endpoint flapping")
	}

	c, err := provider.NewCaller([]provider.Provider{flaky}, openLedger(), provider.CallerConfig{}, noSleep())
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}

	if st := c.Probe(context.Background())[0]; st.Available {
		t.Fatalf("failing probe reported available: %+v", st)
	}

	// The tracker stays healthy, so completion traffic still flows.
	report := c.HealthReport()
	if report[0].State != "healthy" || report[0].Failures != 0 {
		t.Errorf("tracker after failed probe = %+v, want untouched", report[0])
	}
	_, winner, _, err := c.Call(context.Background(), chainOf(cand(provider.RankPrimary, "flaky", "m")), provider.CompletionRequest{})
	if err != nil || winner.Provider != "flaky" {
		t.Errorf("call after failed probe: winner = %q err = %v", winner.Provider, err)
	}
}
