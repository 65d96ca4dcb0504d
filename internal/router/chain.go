package router

import (
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/estimate"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/registry"
)

// BuildChain expands a primary decision into a fallback chain of up to
// three candidates. The secondary stays on the primary's tier with a
// different provider when one exists within budget, otherwise downgrades
// to a cheaper tier on the primary provider. The tertiary is the cheapest
// affordable tier anywhere in the catalog. For verify requests the
// original provider never appears at any rank. A forced override is still
// expanded: the caller chose the primary, not the safety net.
func (s *Selector) BuildChain(sel Selection, primary RouteDecision) []provider.Candidate {
	chain := []provider.Candidate{{
		Rank:          provider.RankPrimary,
		Provider:      primary.Provider,
		Model:         primary.Model,
		Tier:          primary.Tier,
		EstimatedCost: primary.EstimatedCost,
	}}

	ordering := s.ordering(sel.Intent)

	if c, ok := s.secondary(sel, primary, ordering); ok {
		chain = append(chain, c)
	}
	if c, ok := s.tertiary(sel, chain, ordering); ok {
		chain = append(chain, c)
	}
	return chain
}

// ordering is the provider walk order: the intent's policy providers
// first, then any remaining catalog providers.
func (s *Selector) ordering(intent Intent) []string {
	var out []string
	seen := map[string]bool{}
	if row, ok := s.policy.Row(intent); ok {
		for _, name := range row.Providers {
			if !seen[name] {
				out = append(out, name)
				seen[name] = true
			}
		}
	}
	for _, name := range s.reg.Names() {
		if !seen[name] {
			out = append(out, name)
			seen[name] = true
		}
	}
	return out
}

func (s *Selector) secondary(sel Selection, primary RouteDecision, ordering []string) (provider.Candidate, bool) {
	// Same tier, different provider.
	for _, name := range ordering {
		if name == primary.Provider || s.verifyExcluded(sel, name) {
			continue
		}
		p, ok := s.reg.Provider(name)
		if !ok {
			continue
		}
		tier, ok := p.Tier(primary.Tier)
		if !ok {
			continue
		}
		if c, ok := s.candidate(provider.RankSecondary, sel, name, tier); ok {
			return c, true
		}
	}

	// No peer serves the tier: cheaper tier on the primary provider.
	if p, ok := s.reg.Provider(primary.Provider); ok {
		if tier, ok := p.CheaperTier(primary.Tier); ok {
			if c, ok := s.candidate(provider.RankSecondary, sel, primary.Provider, tier); ok {
				return c, true
			}
		}
	}
	return provider.Candidate{}, false
}

func (s *Selector) tertiary(sel Selection, chain []provider.Candidate, ordering []string) (provider.Candidate, bool) {
	var best provider.Candidate
	bestRate := 0.0
	found := false

	for _, name := range ordering {
		if s.verifyExcluded(sel, name) {
			continue
		}
		p, ok := s.reg.Provider(name)
		if !ok {
			continue
		}
		tier := p.CheapestTier()
		if duplicateCandidate(chain, name, tier.Model) {
			continue
		}
		rate := tier.InputUSDPerMTok + tier.OutputUSDPerMTok
		if found && rate >= bestRate {
			continue
		}
		if c, ok := s.candidate(provider.RankTertiary, sel, name, tier); ok {
			best = c
			bestRate = rate
			found = true
		}
	}
	return best, found
}

// candidate builds one chain entry, screening it against the budget. The
// caller re-reserves at attempt time; this screen just keeps obviously
// unaffordable entries out of the chain.
func (s *Selector) candidate(rank string, sel Selection, providerName string, tier registry.Tier) (provider.Candidate, bool) {
	cost := estimate.RequestCost(sel.PromptTokens, sel.CompletionTokens, tier.InputUSDPerMTok, tier.OutputUSDPerMTok)
	if !s.ledger.Check(providerName, cost).OK() {
		return provider.Candidate{}, false
	}
	return provider.Candidate{
		Rank:          rank,
		Provider:      providerName,
		Model:         tier.Model,
		Tier:          tier.Name,
		EstimatedCost: cost,
	}, true
}

func (s *Selector) verifyExcluded(sel Selection, providerName string) bool {
	return sel.Intent == IntentVerify && sel.OriginalProvider != "" && providerName == sel.OriginalProvider
}

func duplicateCandidate(chain []provider.Candidate, providerName, model string) bool {
	for _, c := range chain {
		if c.Provider == providerName && c.Model == model {
			return true
		}
	}
	return false
}
