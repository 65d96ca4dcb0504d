package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
)

// ChatMessage is one message on the wire, OpenAI chat format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`

	// Provider tags assistant messages with the upstream that produced
	// them, so verify requests know which provider to avoid.
	Provider string `json:"provider,omitempty"`
}

// ChatRequest is the inbound OpenAI-compatible request body.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Metadata    *Metadata     `json:"metadata,omitempty"`
}

// ToRequest validates the wire request and converts it to the internal
// form. Unknown roles and empty conversations are client errors; unknown
// metadata values are also client errors rather than silent fallbacks, so
// typos surface immediately.
func (r ChatRequest) ToRequest() (Request, error) {
	if len(r.Messages) == 0 {
		return Request{}, fmt.Errorf("%w: messages must not be empty", ErrClient)
	}

	msgs := make([]provider.LLMMessage, len(r.Messages))
	for i, m := range r.Messages {
		role := provider.MessageRole(strings.ToLower(m.Role))
		switch role {
		case provider.MessageRoleSystem, provider.MessageRoleUser, provider.MessageRoleAssistant:
		default:
			return Request{}, fmt.Errorf("%w: message %d has unknown role %q", ErrClient, i, m.Role)
		}
		msgs[i] = provider.LLMMessage{
			Role:    role,
			Content: m.Content,
			Name:    m.Name,
			Origin:  m.Provider,
		}
	}

	if md := r.Metadata; md != nil {
		if md.Intent != "" && !ValidIntent(md.Intent) {
			return Request{}, fmt.Errorf("%w: unknown intent %q", ErrClient, md.Intent)
		}
		if md.Priority != "" && !ValidPriority(md.Priority) {
			return Request{}, fmt.Errorf("%w: unknown priority %q", ErrClient, md.Priority)
		}
	}

	return Request{
		Model:       r.Model,
		Messages:    msgs,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		Metadata:    r.Metadata,
	}, nil
}

// Choice is one completion choice in the response envelope.
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Completion is the outbound OpenAI-compatible response body. The routing
// block is an extension so callers can see where the request landed.
type Completion struct {
	ID      string              `json:"id"`
	Object  string              `json:"object"`
	Created int64               `json:"created"`
	Model   string              `json:"model"`
	Choices []Choice            `json:"choices"`
	Usage   provider.TokenUsage `json:"usage"`
	Routing *RoutingInfo        `json:"routing,omitempty"`
}

// RoutingInfo reports the route the request took and what compaction did
// to its context.
type RoutingInfo struct {
	Provider string `json:"provider"`
	Tier     string `json:"tier"`
	Intent   Intent `json:"intent"`
	Forced   bool   `json:"forced,omitempty"`
	Attempts int    `json:"attempts"`
}

// NewCompletion assembles the response envelope from an upstream result.
func NewCompletion(resp provider.CompletionResponse, winner provider.Candidate, decision RouteDecision, attempts int, at time.Time) Completion {
	return Completion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: at.Unix(),
		Model:   resp.Model,
		Choices: []Choice{{
			Message: ChatMessage{
				Role:     string(provider.MessageRoleAssistant),
				Content:  resp.Content,
				Provider: winner.Provider,
			},
			FinishReason: string(resp.FinishReason),
		}},
		Usage: resp.Usage,
		Routing: &RoutingInfo{
			Provider: winner.Provider,
			Tier:     winner.Tier,
			Intent:   decision.Intent,
			Forced:   decision.Forced,
			Attempts: attempts,
		},
	}
}

// ErrorEnvelope is the OpenAI-style error body.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the error class and a safe message.
type ErrorBody struct {
	Type    ErrorKind `json:"type"`
	Message string    `json:"message"`
}

// NewErrorEnvelope classifies err and builds the wire error plus its HTTP
// status code.
func NewErrorEnvelope(err error) (ErrorEnvelope, int) {
	kind, status := Classify(err)
	return ErrorEnvelope{Error: ErrorBody{Type: kind, Message: err.Error()}}, status
}
