// Package provider defines the narrow interface for upstream LLM clients,
// sentinel error classification, per-provider health tracking, and the
// fallback caller that walks a per-request candidate chain.
package provider

import "context"

// Provider is the narrow interface every upstream client implements.
// Implementations map their wire errors onto the sentinel errors in this
// package so the caller can classify them.
type Provider interface {
	// Name returns the provider identifier used in routing and budgets.
	Name() string

	// Complete sends a completion request and blocks until a response
	// or error. Implementations must honor ctx cancellation.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// HealthChecker is implemented by providers that support active probing.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
