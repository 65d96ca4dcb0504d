package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/ctxengine"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/estimate"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/registry"
)

const summaryPrompt = "Summarize the following conversation segment. " +
	"Preserve decisions, facts, names, numbers, and open tasks. " +
	"Write compact prose, no preamble."

// TierSummarizer generates compaction summaries by calling the cheapest
// provider that serves the requested tier, through the same fallback
// caller and budget ledger as regular requests.
type TierSummarizer struct {
	reg    *registry.Registry
	caller *provider.Caller
	est    estimate.TokenEstimator
	logger *slog.Logger
}

// NewTierSummarizer creates a TierSummarizer.
func NewTierSummarizer(reg *registry.Registry, caller *provider.Caller, est estimate.TokenEstimator, logger *slog.Logger) *TierSummarizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TierSummarizer{reg: reg, caller: caller, est: est, logger: logger}
}

// Summarize implements the compaction summarizer. It builds a one-entry
// chain on the cheapest provider serving the tier; summarization gets no
// fallback of its own since the compactor degrades to dropping on error.
func (s *TierSummarizer) Summarize(ctx context.Context, messages []provider.LLMMessage, tier string, maxTokens int) (string, error) {
	name, t, ok := s.cheapestForTier(tier)
	if !ok {
		return "", fmt.Errorf("no provider serves tier %q", tier)
	}

	var b strings.Builder
	for _, m := range messages {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}

	prompt := []provider.LLMMessage{
		{Role: provider.MessageRoleSystem, Content: summaryPrompt},
		{Role: provider.MessageRoleUser, Content: b.String()},
	}

	cost := estimate.RequestCost(
		estimate.Messages(s.est, prompt), maxTokens,
		t.InputUSDPerMTok, t.OutputUSDPerMTok,
	)
	chain := []provider.Candidate{{
		Rank:          provider.RankPrimary,
		Provider:      name,
		Model:         t.Model,
		Tier:          t.Name,
		EstimatedCost: cost,
	}}

	resp, _, _, err := s.caller.Call(ctx, chain, provider.CompletionRequest{
		Messages:  prompt,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("summarizer returned empty content")
	}
	return text, nil
}

// cheapestForTier finds the cheapest provider serving the tier.
func (s *TierSummarizer) cheapestForTier(tier string) (string, registry.Tier, bool) {
	var bestName string
	var best registry.Tier
	found := false
	for _, name := range s.reg.Names() {
		p, ok := s.reg.Provider(name)
		if !ok {
			continue
		}
		t, ok := p.Tier(tier)
		if !ok {
			continue
		}
		rate := t.InputUSDPerMTok + t.OutputUSDPerMTok
		if !found || rate < best.InputUSDPerMTok+best.OutputUSDPerMTok {
			bestName = name
			best = t
			found = true
		}
	}
	return bestName, best, found
}

// Compile-time interface assertion.
var _ ctxengine.Summarizer = (*TierSummarizer)(nil)
