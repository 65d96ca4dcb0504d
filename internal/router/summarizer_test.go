package router_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/estimate"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider/providertest"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/router"
)

func newSummarizer(t *testing.T, clients ...provider.Provider) *router.TierSummarizer {
	t.Helper()
	caller, err := provider.NewCaller(clients, openLedger(), provider.CallerConfig{},
		provider.WithSleep(func(context.Context, time.Duration) error { return nil }))
	if err != nil {
		t.Fatalf("NewCaller: %v", err)
	}
	return router.NewTierSummarizer(testRegistry(t), caller, estimate.NewCharEstimator(4, 10), nil)
}

func TestTierSummarizer_UsesCheapestProviderForTier(t *testing.T) {
	local := &providertest.MockProvider{
		NameValue: "lmstudio",
		CompleteFunc: func(_ context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: "  a concise recap  ", Model: req.Model}, nil
		},
	}
	paid := okClient("openrouter")
	s := newSummarizer(t, local, paid)

	msgs := []provider.LLMMessage{
		{Role: provider.MessageRoleUser, Content: "what happened yesterday?"},
		{Role: provider.MessageRoleAssistant, Content: "we shipped the release"},
	}
	got, err := s.Summarize(context.Background(), msgs, "CHEAP_CHAT", 200)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "a concise recap" {
		t.Errorf("summary = %q, want trimmed content", got)
	}

	// Both providers serve CHEAP_CHAT; the free one is cheaper.
	if local.Calls() != 1 || paid.Calls() != 0 {
		t.Errorf("calls = %d/%d, want the free provider only", local.Calls(), paid.Calls())
	}

	req := local.Last()
	if req.MaxTokens != 200 {
		t.Errorf("MaxTokens = %d, want 200", req.MaxTokens)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != provider.MessageRoleSystem {
		t.Fatalf("prompt = %+v, want system instruction plus transcript", req.Messages)
	}
	transcript := req.Messages[1].Content
	if !strings.Contains(transcript, "user: what happened yesterday?") ||
		!strings.Contains(transcript, "assistant: we shipped the release") {
		t.Errorf("transcript = %q, want role-prefixed lines", transcript)
	}
}

func TestTierSummarizer_UnknownTier(t *testing.T) {
	s := newSummarizer(t, okClient("lmstudio"), okClient("openrouter"))

	if _, err := s.Summarize(context.Background(), nil, "NO_SUCH_TIER", 100); err == nil {
		t.Fatal("Summarize accepted an unserved tier")
	}
}

func TestTierSummarizer_EmptyContentIsError(t *testing.T) {
	blank := &providertest.MockProvider{
		NameValue: "lmstudio",
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: "   "}, nil
		},
	}
	s := newSummarizer(t, blank, okClient("openrouter"))

	if _, err := s.Summarize(context.Background(), nil, "CHEAP_CHAT", 100); err == nil {
		t.Fatal("Summarize accepted empty content")
	}
}
