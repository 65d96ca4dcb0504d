package router

import (
	"context"
	"errors"
	"net/http"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
)

// Sentinel errors returned by the selector and pipeline. Callers match with
// errors.Is and translate to wire errors via Classify.
var (
	// ErrClient marks a malformed or unfulfillable request.
	ErrClient = errors.New("invalid request")

	// ErrBudgetExhausted means no candidate fits the remaining spend caps.
	ErrBudgetExhausted = errors.New("budget exhausted for all candidates")

	// ErrVerifyConstraint means the only affordable provider for a verify
	// request is the one that produced the answer being verified.
	ErrVerifyConstraint = errors.New("verify requires a provider different from the original")
)

// ErrorKind is the machine-readable error class placed in wire envelopes.
type ErrorKind string

// Error kinds.
const (
	KindClientError      ErrorKind = "client_error"
	KindBudgetExhausted  ErrorKind = "budget_exhausted"
	KindVerifyConstraint ErrorKind = "verify_constraint_violation"
	KindUpstreamError    ErrorKind = "upstream_error"
	KindCanceled         ErrorKind = "request_canceled"
	KindInternalError    ErrorKind = "internal_error"
)

// Classify maps an error from the pipeline to its wire kind and HTTP status.
func Classify(err error) (ErrorKind, int) {
	switch {
	case errors.Is(err, ErrClient), errors.Is(err, provider.ErrBadRequest):
		return KindClientError, http.StatusBadRequest
	case errors.Is(err, ErrBudgetExhausted):
		return KindBudgetExhausted, http.StatusTooManyRequests
	case errors.Is(err, ErrVerifyConstraint):
		return KindVerifyConstraint, http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled, 499
	case errors.Is(err, provider.ErrAllCandidates),
		errors.Is(err, provider.ErrNoProvider),
		errors.Is(err, provider.ErrRateLimit),
		errors.Is(err, provider.ErrProviderDown),
		errors.Is(err, provider.ErrAuthentication),
		errors.Is(err, provider.ErrContextLength):
		return KindUpstreamError, http.StatusBadGateway
	default:
		return KindInternalError, http.StatusInternalServerError
	}
}
