package openaicompat_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/config"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/registry"
	"github.com/navyguy3117/ArdenV10-Dashboard/modules/provider/openaicompat"
)

func newClient(t *testing.T, baseURL string, mutate func(*config.ProviderConfig)) *openaicompat.Client {
	t.Helper()
	cfg := config.ProviderConfig{
		BaseURL: baseURL,
		APIKey:  "sk-test",
		Tiers: []config.TierConfig{
			{Name: "CHEAP_CHAT", Model: "gpt-4o-mini", InputUSDPerMTok: 0.15, OutputUSDPerMTok: 0.6},
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	reg, err := registry.New(map[string]config.ProviderConfig{"test": cfg})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	p, _ := reg.Provider("test")
	return openaicompat.New(p)
}

func completionRequest() provider.CompletionRequest {
	return provider.CompletionRequest{
		Model: "gpt-4o-mini",
		Messages: []provider.LLMMessage{
			{Role: provider.MessageRoleSystem, Content: "be brief"},
			{Role: provider.MessageRoleUser, Content: "hello"},
		},
		MaxTokens: 64,
	}
}

func TestComplete_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-mini-2024",
			"choices": [{"message": {"role": "assistant", "content": "hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil)
	resp, err := c.Complete(context.Background(), completionRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("request model = %v", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(64) {
		t.Errorf("request max_tokens = %v", gotBody["max_tokens"])
	}

	if resp.Content != "hi there" || resp.Model != "gpt-4o-mini-2024" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.FinishReason != provider.FinishReasonStop {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestComplete_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error": "slow down"}`, provider.ErrRateLimit},
		{"server error", http.StatusInternalServerError, "boom", provider.ErrProviderDown},
		{"gateway error", http.StatusBadGateway, "bad upstream", provider.ErrProviderDown},
		{"bad request", http.StatusBadRequest, `{"error": "missing field"}`, provider.ErrBadRequest},
		{"context length", http.StatusBadRequest, `{"error": {"code": "context_length_exceeded"}}`, provider.ErrContextLength},
		{"context length prose", http.StatusBadRequest, `{"error": "this model's maximum context length is 8192"}`, provider.ErrContextLength},
		{"unauthorized", http.StatusUnauthorized, "bad key", provider.ErrAuthentication},
		{"forbidden", http.StatusForbidden, "nope", provider.ErrAuthentication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newClient(t, srv.URL, nil)
			_, err := c.Complete(context.Background(), completionRequest())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestComplete_ConnectionRefusedIsProviderDown(t *testing.T) {
	// A server that is immediately closed leaves a port nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newClient(t, url, nil)
	_, err := c.Complete(context.Background(), completionRequest())
	if !errors.Is(err, provider.ErrProviderDown) {
		t.Errorf("err = %v, want ErrProviderDown", err)
	}
}

func TestComplete_CancellationIsNotProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect;
		// otherwise r.Context() is never canceled and srv.Close() hangs.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, completionRequest())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if errors.Is(err, provider.ErrProviderDown) {
		t.Error("caller timeout classified as provider failure")
	}
}

func TestComplete_ExtraHeaders(t *testing.T) {
	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("HTTP-Referer")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}, "finish_reason": "stop"}]}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, func(cfg *config.ProviderConfig) {
		cfg.Headers = map[string]string{"HTTP-Referer": "https://arden.local"}
	})
	if _, err := c.Complete(context.Background(), completionRequest()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if gotReferer != "https://arden.local" {
		t.Errorf("HTTP-Referer = %q", gotReferer)
	}
}

func TestHealthCheck(t *testing.T) {
	var gotPath string
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, nil)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if gotPath != "/models" {
		t.Errorf("probe path = %q, want /models", gotPath)
	}

	healthy = false
	if err := c.HealthCheck(context.Background()); !errors.Is(err, provider.ErrProviderDown) {
		t.Errorf("err = %v, want ErrProviderDown", err)
	}
}

func TestHealthCheck_CustomProbeURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, func(cfg *config.ProviderConfig) {
		cfg.ProbeURL = srv.URL + "/api/health"
	})
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if gotPath != "/api/health" {
		t.Errorf("probe path = %q, want configured probe", gotPath)
	}
}
