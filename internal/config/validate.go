package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// knownIntents are the intent labels the policy table may reference.
var knownIntents = map[string]bool{
	"chat":      true,
	"code":      true,
	"reasoning": true,
	"vision":    true,
	"verify":    true,
}

// knownPriorities are the priority labels token budgets may reference.
var knownPriorities = map[string]bool{
	"low":    true,
	"normal": true,
	"high":   true,
}

// Validate checks the structural validity of a Config. All problems are
// collected and reported together so a misconfigured file fails fast with
// one complete diagnosis at startup.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Providers) == 0 {
		errs = append(errs, errors.New("config: at least one provider must be configured"))
	}

	errs = append(errs, validateProviders(cfg)...)
	errs = append(errs, validateRouting(cfg)...)
	errs = append(errs, validateTokens(cfg)...)
	errs = append(errs, validateJobs(cfg)...)

	return errors.Join(errs...)
}

func validateProviders(cfg *Config) []error {
	var errs []error

	for name, p := range cfg.Providers {
		if p.Kind != "openai_compatible" {
			errs = append(errs, fmt.Errorf("config: provider %q: unsupported kind %q", name, p.Kind))
		}
		if p.BaseURL == "" {
			errs = append(errs, fmt.Errorf("config: provider %q: base_url is required", name))
		}
		if len(p.Tiers) == 0 {
			errs = append(errs, fmt.Errorf("config: provider %q: at least one tier is required", name))
		}

		seen := map[string]bool{}
		for i, t := range p.Tiers {
			if t.Name == "" {
				errs = append(errs, fmt.Errorf("config: provider %q: tiers[%d]: name is required", name, i))
			}
			if t.Model == "" {
				errs = append(errs, fmt.Errorf("config: provider %q: tier %q: model is required", name, t.Name))
			}
			if seen[t.Name] {
				errs = append(errs, fmt.Errorf("config: provider %q: duplicate tier %q", name, t.Name))
			}
			seen[t.Name] = true

			// Paid providers must carry cost rates; free (local) tiers may be zero.
			if !p.Free && (t.InputUSDPerMTok <= 0 || t.OutputUSDPerMTok <= 0) {
				errs = append(errs, fmt.Errorf("config: provider %q: tier %q: missing cost rate", name, t.Name))
			}
			if t.InputUSDPerMTok < 0 || t.OutputUSDPerMTok < 0 {
				errs = append(errs, fmt.Errorf("config: provider %q: tier %q: negative cost rate", name, t.Name))
			}
		}
	}

	for name := range cfg.Budget.PerProvider {
		if _, ok := cfg.Providers[name]; !ok {
			errs = append(errs, fmt.Errorf("config: budget.per_provider references unknown provider %q", name))
		}
	}

	return errs
}

func validateRouting(cfg *Config) []error {
	var errs []error

	if len(cfg.Routing.Policies) == 0 {
		errs = append(errs, errors.New("config: routing.policies must define at least one intent"))
	}

	if !knownPriorities[cfg.Routing.DefaultPriority] {
		errs = append(errs, fmt.Errorf("config: routing.default_priority %q is not one of low/normal/high", cfg.Routing.DefaultPriority))
	}

	for intent, pol := range cfg.Routing.Policies {
		if !knownIntents[intent] {
			errs = append(errs, fmt.Errorf("config: routing.policies: unknown intent %q", intent))
		}
		if pol.Tier == "" {
			errs = append(errs, fmt.Errorf("config: routing.policies.%s: tier is required", intent))
		}
		if len(pol.Providers) == 0 {
			errs = append(errs, fmt.Errorf("config: routing.policies.%s: at least one provider is required", intent))
		}
		for _, pname := range pol.Providers {
			p, ok := cfg.Providers[pname]
			if !ok {
				errs = append(errs, fmt.Errorf("config: routing.policies.%s references unknown provider %q", intent, pname))
				continue
			}
			if !hasTier(p, pol.Tier) {
				errs = append(errs, fmt.Errorf("config: routing.policies.%s: provider %q does not define tier %q", intent, pname, pol.Tier))
			}
		}
	}

	for intent := range cfg.Routing.IntentKeywords {
		if !knownIntents[intent] {
			errs = append(errs, fmt.Errorf("config: routing.intent_keywords: unknown intent %q", intent))
		}
	}

	return errs
}

func validateTokens(cfg *Config) []error {
	var errs []error

	for prio, limits := range cfg.Tokens.Priorities {
		if !knownPriorities[prio] {
			errs = append(errs, fmt.Errorf("config: tokens.priorities: unknown priority %q", prio))
		}
		if limits.TargetInputTokens <= 0 || limits.HardMaxInputTokens <= 0 {
			errs = append(errs, fmt.Errorf("config: tokens.priorities.%s: limits must be positive", prio))
		}
		if limits.HardMaxInputTokens < limits.TargetInputTokens {
			errs = append(errs, fmt.Errorf("config: tokens.priorities.%s: hard_max_input_tokens below target_input_tokens", prio))
		}
	}

	if cfg.Tokens.Summary.MaxTokens < cfg.Tokens.Summary.MinTokens {
		errs = append(errs, errors.New("config: tokens.summary: max_tokens below min_tokens"))
	}

	return errs
}

func validateJobs(cfg *Config) []error {
	var errs []error
	if _, err := cron.ParseStandard(cfg.Jobs.BudgetFlush); err != nil {
		errs = append(errs, fmt.Errorf("config: jobs.budget_flush: invalid cron spec: %w", err))
	}
	return errs
}

func hasTier(p ProviderConfig, tier string) bool {
	for _, t := range p.Tiers {
		if t.Name == tier {
			return true
		}
	}
	return false
}
