package router

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/config"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/estimate"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/registry"
)

// Selection is the input to route selection, assembled by the pipeline
// after compaction.
type Selection struct {
	Intent   Intent
	Priority Priority

	// OverrideRoute and OverrideModel carry caller hints. Either may be
	// rejected; rejection falls through to policy routing.
	OverrideRoute string
	OverrideModel string

	// OriginalProvider is the provider that produced the answer a verify
	// request is checking. Empty when unknown or not a verify request.
	OriginalProvider string

	// PromptTokens is the post-compaction input estimate.
	// CompletionTokens is the output allowance used for cost projection.
	PromptTokens     int
	CompletionTokens int
}

// Selector chooses the primary route for a request: policy row lookup,
// override handling, budget screening, and the verify distinct-provider
// constraint. Selection never commits spend; the caller reserves budget
// at call time.
type Selector struct {
	reg    *registry.Registry
	ledger *budget.Ledger
	policy Policy
	cfg    config.RoutingConfig
	logger *slog.Logger

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// SelectorOption configures optional Selector behavior.
type SelectorOption func(*Selector)

// WithSelectorLogger injects a structured logger.
func WithSelectorLogger(l *slog.Logger) SelectorOption {
	return func(s *Selector) { s.logger = l }
}

// WithSelectorClock injects a clock for testing.
func WithSelectorClock(now func() time.Time) SelectorOption {
	return func(s *Selector) { s.now = now }
}

// NewSelector creates a Selector over a validated registry and ledger.
func NewSelector(reg *registry.Registry, ledger *budget.Ledger, cfg config.RoutingConfig, opts ...SelectorOption) *Selector {
	s := &Selector{
		reg:    reg,
		ledger: ledger,
		policy: NewPolicy(cfg),
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Select resolves the primary route for a request. Overrides are tried
// first; a rejected override is logged and selection falls through to
// policy routing rather than failing the request. Within policy routing
// the provider ordering is walked at the policy tier, then again at a
// cheaper tier, before giving up with a budget error. For verify intents
// the original provider is excluded; if exclusion is the only reason no
// route remains, the error says so.
func (s *Selector) Select(sel Selection) (RouteDecision, error) {
	if d, ok := s.trySelectOverride(sel); ok {
		return d, nil
	}

	row, ok := s.policy.Row(sel.Intent)
	if !ok || len(row.Providers) == 0 {
		return RouteDecision{}, fmt.Errorf("%w: no routing policy for intent %q", ErrClient, sel.Intent)
	}

	excludedViable := false

	// First pass: the policy tier across the provider ordering.
	for _, name := range row.Providers {
		d, state := s.evaluate(sel, name, row.Tier, "policy")
		switch state {
		case routeOK:
			return d, nil
		case routeExcludedViable:
			excludedViable = true
		}
	}

	// Second pass: a cheaper tier on the same ordering.
	for _, name := range row.Providers {
		p, ok := s.reg.Provider(name)
		if !ok {
			continue
		}
		cheaper, ok := p.CheaperTier(row.Tier)
		if !ok {
			continue
		}
		d, state := s.evaluate(sel, name, cheaper.Name, "policy tier downgraded for budget")
		switch state {
		case routeOK:
			s.logger.Info("route downgraded to cheaper tier",
				"intent", sel.Intent,
				"provider", d.Provider,
				"tier", d.Tier,
			)
			return d, nil
		case routeExcludedViable:
			excludedViable = true
		}
	}

	if excludedViable {
		return RouteDecision{}, fmt.Errorf("%w: only %q remains within budget", ErrVerifyConstraint, sel.OriginalProvider)
	}
	return RouteDecision{}, fmt.Errorf("%w: intent %q", ErrBudgetExhausted, sel.Intent)
}

type routeState int

const (
	routeOK routeState = iota
	routeSkipped
	routeExcludedViable
)

// evaluate checks one (provider, tier) pair against the verify constraint
// and the budget. It reports routeExcludedViable when the pair would have
// passed budget but is the verify request's original provider.
func (s *Selector) evaluate(sel Selection, providerName, tierName, reason string) (RouteDecision, routeState) {
	p, ok := s.reg.Provider(providerName)
	if !ok {
		return RouteDecision{}, routeSkipped
	}
	tier, ok := p.Tier(tierName)
	if !ok {
		return RouteDecision{}, routeSkipped
	}

	cost := estimate.RequestCost(sel.PromptTokens, sel.CompletionTokens, tier.InputUSDPerMTok, tier.OutputUSDPerMTok)
	inBudget := s.ledger.Check(providerName, cost).OK()

	if sel.Intent == IntentVerify && sel.OriginalProvider != "" && providerName == sel.OriginalProvider {
		if inBudget {
			return RouteDecision{}, routeExcludedViable
		}
		return RouteDecision{}, routeSkipped
	}
	if !inBudget {
		return RouteDecision{}, routeSkipped
	}

	return RouteDecision{
		Provider:      providerName,
		Model:         tier.Model,
		Tier:          tier.Name,
		Intent:        sel.Intent,
		Priority:      sel.Priority,
		Reason:        reason,
		Time:          s.now().UTC(),
		EstimatedCost: cost,
	}, routeOK
}

// rates carries one tier's cost rates for post-call pricing.
type rates struct {
	in  float64
	out float64
}

func (r rates) cost(promptTokens, completionTokens int) float64 {
	return estimate.RequestCost(promptTokens, completionTokens, r.in, r.out)
}

// tierRates looks up the cost rates of a provider tier.
func (s *Selector) tierRates(providerName, tierName string) (rates, bool) {
	p, ok := s.reg.Provider(providerName)
	if !ok {
		return rates{}, false
	}
	t, ok := p.Tier(tierName)
	if !ok {
		return rates{}, false
	}
	return rates{in: t.InputUSDPerMTok, out: t.OutputUSDPerMTok}, true
}

// trySelectOverride resolves caller-supplied route/model hints. It returns
// ok=false whenever the override is absent, disabled by config, names an
// unknown provider or model, violates the verify constraint, or fails the
// budget check. Every rejection is logged, never fatal.
func (s *Selector) trySelectOverride(sel Selection) (RouteDecision, bool) {
	route := sel.OverrideRoute
	model := sel.OverrideModel
	if route != "" && !s.cfg.RouteOverrideAllowed() {
		s.logger.Warn("route override disabled by config", "route", route)
		route = ""
	}
	if model != "" && !s.cfg.ModelOverrideAllowed() {
		s.logger.Warn("model override disabled by config", "model", model)
		model = ""
	}
	if route == "" && model == "" {
		return RouteDecision{}, false
	}

	providerName, tier, ok := s.resolveOverride(sel, route, model)
	if !ok {
		return RouteDecision{}, false
	}

	if sel.Intent == IntentVerify && sel.OriginalProvider != "" && providerName == sel.OriginalProvider {
		s.logger.Warn("override rejected: verify must use a different provider",
			"provider", providerName,
			"original", sel.OriginalProvider,
		)
		return RouteDecision{}, false
	}

	cost := estimate.RequestCost(sel.PromptTokens, sel.CompletionTokens, tier.InputUSDPerMTok, tier.OutputUSDPerMTok)
	if v := s.ledger.Check(providerName, cost); !v.OK() {
		s.logger.Warn("override rejected: budget",
			"provider", providerName,
			"model", tier.Model,
			"verdict", v.String(),
		)
		return RouteDecision{}, false
	}

	return RouteDecision{
		Provider:      providerName,
		Model:         tier.Model,
		Tier:          tier.Name,
		Intent:        sel.Intent,
		Priority:      sel.Priority,
		Forced:        true,
		Reason:        "caller override",
		Time:          s.now().UTC(),
		EstimatedCost: cost,
	}, true
}

// resolveOverride maps route/model hints onto a concrete provider tier.
func (s *Selector) resolveOverride(sel Selection, route, model string) (string, registry.Tier, bool) {
	switch {
	case route != "" && model != "":
		p, ok := s.reg.Provider(route)
		if !ok {
			s.logger.Warn("override rejected: unknown provider", "route", route)
			return "", registry.Tier{}, false
		}
		tier, ok := p.TierForModel(model)
		if !ok {
			s.logger.Warn("override rejected: provider does not serve model",
				"route", route,
				"model", model,
			)
			return "", registry.Tier{}, false
		}
		return route, tier, true

	case model != "":
		name, tier, ok := s.reg.FindModel(model)
		if !ok {
			s.logger.Warn("override rejected: unknown model", "model", model)
			return "", registry.Tier{}, false
		}
		return name, tier, true

	default:
		p, ok := s.reg.Provider(route)
		if !ok {
			s.logger.Warn("override rejected: unknown provider", "route", route)
			return "", registry.Tier{}, false
		}
		// Route-only overrides keep the policy tier when the provider
		// serves it, otherwise fall back to its cheapest tier.
		if row, ok := s.policy.Row(sel.Intent); ok {
			if tier, ok := p.Tier(row.Tier); ok {
				return route, tier, true
			}
		}
		return route, p.CheapestTier(), true
	}
}
