package router_test

import (
	"errors"
	"testing"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/config"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/registry"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/router"
)

// testRegistry builds a two-provider catalog: a paid provider with a full
// tier ladder and a free local one with two tiers.
func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(map[string]config.ProviderConfig{
		"openrouter": {
			BaseURL: "https://openrouter.ai/api/v1",
			Tiers: []config.TierConfig{
				{Name: "CHEAP_CHAT", Model: "gpt-4o-mini", InputUSDPerMTok: 0.15, OutputUSDPerMTok: 0.6},
				{Name: "CODE_PRIMARY", Model: "claude-sonnet-4", InputUSDPerMTok: 3, OutputUSDPerMTok: 15},
				{Name: "REASONING_PRIMARY", Model: "o4-mini", InputUSDPerMTok: 2.5, OutputUSDPerMTok: 10},
				{Name: "FALLBACK_CHEAP", Model: "llama-3.1-8b", InputUSDPerMTok: 0.02, OutputUSDPerMTok: 0.03},
			},
		},
		"lmstudio": {
			BaseURL: "http://127.0.0.1:1234/v1",
			Free:    true,
			Tiers: []config.TierConfig{
				{Name: "CHEAP_CHAT", Model: "qwen2.5-14b"},
				{Name: "CODE_PRIMARY", Model: "qwen2.5-coder-14b"},
			},
		},
	})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return reg
}

func testRouting() config.RoutingConfig {
	return config.RoutingConfig{
		Policies: map[string]config.PolicyConfig{
			"chat":      {Tier: "CHEAP_CHAT", Providers: []string{"lmstudio", "openrouter"}},
			"code":      {Tier: "CODE_PRIMARY", Providers: []string{"openrouter", "lmstudio"}},
			"reasoning": {Tier: "REASONING_PRIMARY", Providers: []string{"openrouter"}},
			"verify":    {Tier: "CHEAP_CHAT", Providers: []string{"openrouter", "lmstudio"}},
		},
	}
}

func openLedger() *budget.Ledger {
	return budget.New(budget.Config{Default: budget.Caps{MonthlyUSD: 1000}})
}

// exhaust pushes a provider's counters far past any cap.
func exhaust(l *budget.Ledger, provider string) {
	l.Commit(provider, 5000)
}

func newSelector(t *testing.T, ledger *budget.Ledger) *router.Selector {
	t.Helper()
	return router.NewSelector(testRegistry(t), ledger, testRouting())
}

func selection(intent router.Intent) router.Selection {
	return router.Selection{
		Intent:           intent,
		Priority:         router.PriorityNormal,
		PromptTokens:     1000,
		CompletionTokens: 500,
	}
}

func TestSelect_PolicyRoute(t *testing.T) {
	s := newSelector(t, openLedger())

	d, err := s.Select(selection(router.IntentChat))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Provider != "lmstudio" || d.Tier != "CHEAP_CHAT" || d.Model != "qwen2.5-14b" {
		t.Errorf("decision = %+v, want lmstudio CHEAP_CHAT", d)
	}
	if d.Forced {
		t.Error("Forced = true on a policy route")
	}
	if d.Reason != "policy" {
		t.Errorf("Reason = %q, want policy", d.Reason)
	}
}

func TestSelect_WalksOrderingPastExhaustedProvider(t *testing.T) {
	l := openLedger()
	exhaust(l, "openrouter")
	s := newSelector(t, l)

	d, err := s.Select(selection(router.IntentCode))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Provider != "lmstudio" || d.Tier != "CODE_PRIMARY" {
		t.Errorf("decision = %+v, want lmstudio CODE_PRIMARY", d)
	}
}

func TestSelect_DowngradesToCheaperTier(t *testing.T) {
	// A tight per-provider daily cap rejects the reasoning tier but still
	// admits the cheap fallback tier on the same provider.
	l := budget.New(budget.Config{
		Default: budget.Caps{MonthlyUSD: 1000},
		PerProvider: map[string]budget.Caps{
			"openrouter": {MonthlyUSD: 30, DailyUSD: 0.1},
		},
	})
	s := newSelector(t, l)

	sel := selection(router.IntentReasoning)
	sel.PromptTokens = 200000
	sel.CompletionTokens = 10000

	d, err := s.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Provider != "openrouter" || d.Tier != "FALLBACK_CHEAP" {
		t.Errorf("decision = %+v, want openrouter FALLBACK_CHEAP", d)
	}
	if d.Reason == "policy" {
		t.Errorf("Reason = %q, want a downgrade reason", d.Reason)
	}
}

func TestSelect_BudgetExhausted(t *testing.T) {
	l := openLedger()
	exhaust(l, "openrouter")
	exhaust(l, "lmstudio")
	s := newSelector(t, l)

	_, err := s.Select(selection(router.IntentChat))
	if !errors.Is(err, router.ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
}

func TestSelect_UnroutableIntentIsClientError(t *testing.T) {
	// A policy table with no row for the intent and no chat fallback.
	cfg := config.RoutingConfig{
		Policies: map[string]config.PolicyConfig{
			"code": {Tier: "CODE_PRIMARY", Providers: []string{"openrouter"}},
		},
	}
	s := router.NewSelector(testRegistry(t), openLedger(), cfg)

	_, err := s.Select(selection(router.IntentVision))
	if !errors.Is(err, router.ErrClient) {
		t.Fatalf("err = %v, want ErrClient", err)
	}
}

func TestSelect_VerifyExcludesOriginalProvider(t *testing.T) {
	s := newSelector(t, openLedger())

	sel := selection(router.IntentVerify)
	sel.OriginalProvider = "openrouter"

	d, err := s.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Provider != "lmstudio" {
		t.Errorf("Provider = %q, want lmstudio", d.Provider)
	}
}

func TestSelect_VerifyConstraintWhenOnlyOriginalAffordable(t *testing.T) {
	l := openLedger()
	exhaust(l, "lmstudio")
	s := newSelector(t, l)

	sel := selection(router.IntentVerify)
	sel.OriginalProvider = "openrouter"

	_, err := s.Select(sel)
	if !errors.Is(err, router.ErrVerifyConstraint) {
		t.Fatalf("err = %v, want ErrVerifyConstraint", err)
	}
}

func TestSelect_VerifyUnknownOriginRoutesNormally(t *testing.T) {
	s := newSelector(t, openLedger())

	d, err := s.Select(selection(router.IntentVerify))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Provider != "openrouter" {
		t.Errorf("Provider = %q, want first policy provider", d.Provider)
	}
}

func TestSelect_OverrideRouteAndModel(t *testing.T) {
	s := newSelector(t, openLedger())

	sel := selection(router.IntentChat)
	sel.OverrideRoute = "openrouter"
	sel.OverrideModel = "claude-sonnet-4"

	d, err := s.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Provider != "openrouter" || d.Model != "claude-sonnet-4" || d.Tier != "CODE_PRIMARY" {
		t.Errorf("decision = %+v, want forced openrouter/claude-sonnet-4", d)
	}
	if !d.Forced {
		t.Error("Forced = false, want true")
	}
}

func TestSelect_OverrideModelOnly(t *testing.T) {
	s := newSelector(t, openLedger())

	sel := selection(router.IntentChat)
	sel.OverrideModel = "o4-mini"

	d, err := s.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Provider != "openrouter" || d.Tier != "REASONING_PRIMARY" || !d.Forced {
		t.Errorf("decision = %+v, want forced openrouter REASONING_PRIMARY", d)
	}
}

func TestSelect_OverrideRouteOnlyKeepsPolicyTier(t *testing.T) {
	s := newSelector(t, openLedger())

	sel := selection(router.IntentChat)
	sel.OverrideRoute = "openrouter"

	d, err := s.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Provider != "openrouter" || d.Tier != "CHEAP_CHAT" || !d.Forced {
		t.Errorf("decision = %+v, want forced openrouter CHEAP_CHAT", d)
	}
}

func TestSelect_UnknownOverrideFallsThroughToPolicy(t *testing.T) {
	s := newSelector(t, openLedger())

	sel := selection(router.IntentChat)
	sel.OverrideModel = "no-such-model"

	d, err := s.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Forced {
		t.Error("Forced = true after a rejected override")
	}
	if d.Provider != "lmstudio" {
		t.Errorf("Provider = %q, want policy route lmstudio", d.Provider)
	}
}

func TestSelect_OverrideDisabledByConfig(t *testing.T) {
	off := false
	cfg := testRouting()
	cfg.AllowRouteOverride = &off

	s := router.NewSelector(testRegistry(t), openLedger(), cfg)

	sel := selection(router.IntentChat)
	sel.OverrideRoute = "openrouter"

	d, err := s.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Forced || d.Provider != "lmstudio" {
		t.Errorf("decision = %+v, want policy route with override ignored", d)
	}
}

func TestSelect_OverrideOverBudgetFallsThrough(t *testing.T) {
	l := openLedger()
	exhaust(l, "openrouter")
	s := newSelector(t, l)

	sel := selection(router.IntentChat)
	sel.OverrideRoute = "openrouter"

	d, err := s.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Forced || d.Provider != "lmstudio" {
		t.Errorf("decision = %+v, want fall-through to lmstudio", d)
	}
}

func TestSelect_OverrideVerifySameProviderRejected(t *testing.T) {
	s := newSelector(t, openLedger())

	sel := selection(router.IntentVerify)
	sel.OriginalProvider = "openrouter"
	sel.OverrideRoute = "openrouter"

	d, err := s.Select(sel)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if d.Forced {
		t.Error("Forced = true, want override rejected")
	}
	if d.Provider != "lmstudio" {
		t.Errorf("Provider = %q, want lmstudio", d.Provider)
	}
}
