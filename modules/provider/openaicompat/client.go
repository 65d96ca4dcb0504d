// Package openaicompat implements the provider client for any API that
// speaks the OpenAI chat completions interface (OpenRouter, LM Studio,
// Ollama, vLLM, LiteLLM, etc.) via a configurable base_url.
package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/registry"
)

const defaultTimeout = 120 * time.Second

// Client is an OpenAI-compatible upstream client for one provider.
type Client struct {
	name     string
	baseURL  string
	apiKey   string
	headers  map[string]string
	probeURL string
	client   *http.Client
	logger   *slog.Logger
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.client = h }
}

// New builds a Client from a catalog entry.
func New(p *registry.Provider, opts ...Option) *Client {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		name:     p.Name,
		baseURL:  strings.TrimRight(p.BaseURL, "/"),
		apiKey:   p.APIKey,
		headers:  p.Headers,
		probeURL: p.ProbeURL,
		// Response-header timeout instead of a global client timeout:
		// slow generations stay bounded by the per-request context.
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: timeout,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Name implements provider.Provider.
func (c *Client) Name() string {
	return c.name
}

// Complete implements provider.Provider.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	resp, err := c.doRequest(ctx, buildRequest(req))
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return provider.CompletionResponse{}, handleErrorResponse(resp)
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("decode response: %w", err)
	}

	return parseResponse(oaiResp), nil
}

// HealthCheck implements provider.HealthChecker. It probes the configured
// probe URL, or the /models endpoint when none is set.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := c.probeURL
	if endpoint == "" {
		endpoint = c.baseURL + "/models"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close()               //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, resp.Body) // drain body

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health check returned HTTP %d", provider.ErrProviderDown, resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

// Compile-time interface assertions.
var (
	_ provider.Provider      = (*Client)(nil)
	_ provider.HealthChecker = (*Client)(nil)
)
