package provider

import "errors"

// Sentinel errors for provider operations.
var (
	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrProviderDown indicates a network failure, timeout, or 5xx from
	// the provider. Transient: the attempt may be retried.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrAuthentication indicates the provider rejected the credentials.
	ErrAuthentication = errors.New("provider authentication failed")

	// ErrBadRequest indicates the provider rejected the request shape.
	ErrBadRequest = errors.New("provider rejected request")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrAllCandidates indicates every candidate in the fallback chain
	// has been exhausted.
	ErrAllCandidates = errors.New("all candidates failed")

	// ErrNoProvider indicates no client is configured for a provider name.
	ErrNoProvider = errors.New("no provider configured")
)

// IsTransient reports whether the error is temporary and the same
// candidate may be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}

// IsPermanent reports whether the error should skip the retry budget and
// advance straight to the next candidate.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrBadRequest) ||
		errors.Is(err, ErrContextLength)
}
