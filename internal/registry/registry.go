// Package registry holds the static description of upstream providers and
// their model tiers, built once from configuration and read-only afterward.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/config"
)

// Tier binds a tier label to a concrete model and its per-Mtok cost rates.
type Tier struct {
	Name             string
	Model            string
	InputUSDPerMTok  float64
	OutputUSDPerMTok float64
}

// combinedRate orders tiers by cost for cheapest-tier lookups.
func (t Tier) combinedRate() float64 {
	return t.InputUSDPerMTok + t.OutputUSDPerMTok
}

// Provider describes one upstream provider.
type Provider struct {
	Name     string
	BaseURL  string
	APIKey   string
	Headers  map[string]string
	Free     bool
	ProbeURL string
	Timeout  time.Duration

	// Tiers preserves configuration order.
	Tiers []Tier

	tierIdx map[string]int
}

// Tier returns the named tier.
func (p *Provider) Tier(name string) (Tier, bool) {
	i, ok := p.tierIdx[name]
	if !ok {
		return Tier{}, false
	}
	return p.Tiers[i], true
}

// CheapestTier returns the tier with the lowest combined rate. Ties keep
// configuration order.
func (p *Provider) CheapestTier() Tier {
	best := p.Tiers[0]
	for _, t := range p.Tiers[1:] {
		if t.combinedRate() < best.combinedRate() {
			best = t
		}
	}
	return best
}

// CheaperTier returns the cheapest tier strictly cheaper than the named
// one, or false when none exists.
func (p *Provider) CheaperTier(than string) (Tier, bool) {
	ref, ok := p.Tier(than)
	if !ok {
		return Tier{}, false
	}

	var best Tier
	found := false
	for _, t := range p.Tiers {
		if t.combinedRate() >= ref.combinedRate() {
			continue
		}
		if !found || t.combinedRate() < best.combinedRate() {
			best = t
			found = true
		}
	}
	return best, found
}

// TierForModel returns the tier whose model matches the given identifier.
func (p *Provider) TierForModel(model string) (Tier, bool) {
	for _, t := range p.Tiers {
		if t.Model == model {
			return t, true
		}
	}
	return Tier{}, false
}

// Registry is the immutable provider catalog.
type Registry struct {
	providers map[string]*Provider
	names     []string
}

// New builds a Registry from configuration, skipping disabled providers.
// It fails fast on malformed tier definitions so a broken catalog never
// reaches the routing path.
func New(cfgs map[string]config.ProviderConfig) (*Registry, error) {
	r := &Registry{providers: make(map[string]*Provider, len(cfgs))}

	for name, pc := range cfgs {
		if pc.Disabled {
			continue
		}
		if len(pc.Tiers) == 0 {
			return nil, fmt.Errorf("registry: provider %q has no tiers", name)
		}

		p := &Provider{
			Name:     name,
			BaseURL:  pc.BaseURL,
			APIKey:   pc.APIKey,
			Headers:  pc.Headers,
			Free:     pc.Free,
			ProbeURL: pc.ProbeURL,
			Timeout:  pc.Timeout,
			Tiers:    make([]Tier, len(pc.Tiers)),
			tierIdx:  make(map[string]int, len(pc.Tiers)),
		}

		for i, tc := range pc.Tiers {
			if tc.Name == "" || tc.Model == "" {
				return nil, fmt.Errorf("registry: provider %q: tier %d is malformed", name, i)
			}
			if !pc.Free && (tc.InputUSDPerMTok <= 0 || tc.OutputUSDPerMTok <= 0) {
				return nil, fmt.Errorf("registry: provider %q: tier %q is missing a cost rate", name, tc.Name)
			}
			if _, dup := p.tierIdx[tc.Name]; dup {
				return nil, fmt.Errorf("registry: provider %q: duplicate tier %q", name, tc.Name)
			}
			p.Tiers[i] = Tier{
				Name:             tc.Name,
				Model:            tc.Model,
				InputUSDPerMTok:  tc.InputUSDPerMTok,
				OutputUSDPerMTok: tc.OutputUSDPerMTok,
			}
			p.tierIdx[tc.Name] = i
		}

		r.providers[name] = p
		r.names = append(r.names, name)
	}

	if len(r.providers) == 0 {
		return nil, fmt.Errorf("registry: no enabled providers")
	}

	sort.Strings(r.names)
	return r, nil
}

// Provider returns the named provider.
func (r *Registry) Provider(name string) (*Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Names returns all provider names in sorted order.
func (r *Registry) Names() []string {
	return r.names
}

// FindModel locates the provider and tier offering the given model id.
// Used to resolve explicit model overrides.
func (r *Registry) FindModel(model string) (string, Tier, bool) {
	for _, name := range r.names {
		if t, ok := r.providers[name].TierForModel(model); ok {
			return name, t, true
		}
	}
	return "", Tier{}, false
}
