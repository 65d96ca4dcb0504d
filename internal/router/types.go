// Package router implements route selection, the per-request fallback
// chain, and the request pipeline that sequences compaction, routing, and
// provider calls into an OpenAI-compatible completion.
package router

import (
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
)

// Intent is a coarse classification of a request's purpose, used to select
// a model tier.
type Intent string

// Intent values.
const (
	IntentChat      Intent = "chat"
	IntentCode      Intent = "code"
	IntentReasoning Intent = "reasoning"
	IntentVision    Intent = "vision"
	IntentVerify    Intent = "verify"
)

// ValidIntent reports whether s names a known intent.
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentChat, IntentCode, IntentReasoning, IntentVision, IntentVerify:
		return true
	}
	return false
}

// Priority influences context budget and summarizer tier, not tier choice.
type Priority string

// Priority values.
const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ValidPriority reports whether s names a known priority.
func ValidPriority(s string) bool {
	switch Priority(s) {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// Metadata carries optional routing hints on an inbound request.
type Metadata struct {
	Intent   string `json:"intent,omitempty"`
	Priority string `json:"priority,omitempty"`
	Route    string `json:"route,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Request is one inbound chat-completion call, owned by the pipeline for
// the duration of the call.
type Request struct {
	Model       string                `json:"model"`
	Messages    []provider.LLMMessage `json:"messages"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
	Temperature *float64              `json:"temperature,omitempty"`
	Metadata    *Metadata             `json:"metadata,omitempty"`
}

// RouteDecision is the immutable output of route selection.
type RouteDecision struct {
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Tier     string    `json:"tier"`
	Intent   Intent    `json:"intent"`
	Priority Priority  `json:"priority"`
	Forced   bool      `json:"forced"`
	Reason   string    `json:"reason"`
	Time     time.Time `json:"time"`

	// EstimatedCost is the projected cost of one attempt at this route.
	EstimatedCost float64 `json:"estimated_cost_usd"`
}
