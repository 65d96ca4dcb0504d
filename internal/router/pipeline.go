package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/ctxengine"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/memory"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
)

// Journal stream names used by the pipeline.
const (
	StreamRequests = "router-requests"
	StreamErrors   = "router-errors"
	StreamContext  = "router-context"
)

// Recorder receives append-only journal records. Implementations must not
// block the request path; failures are swallowed.
type Recorder interface {
	Record(stream string, record any)
}

// nopRecorder drops every record.
type nopRecorder struct{}

func (nopRecorder) Record(string, any) {}

// PipelineConfig tunes the request pipeline.
type PipelineConfig struct {
	// DefaultPriority applies when a request carries none. Default: normal.
	DefaultPriority Priority

	// DefaultMaxTokens is the completion allowance when the request does
	// not set max_tokens. Default: 512.
	DefaultMaxTokens int

	// Agent names the calling agent in telemetry rows. Default: arden.
	Agent string
}

func (c *PipelineConfig) defaults() {
	if c.DefaultPriority == "" {
		c.DefaultPriority = PriorityNormal
	}
	if c.DefaultMaxTokens <= 0 {
		c.DefaultMaxTokens = 512
	}
	if c.Agent == "" {
		c.Agent = "arden"
	}
}

// Pipeline sequences one request through its lifecycle: received,
// compacting, routing, calling, then succeeded or failed. Each request is
// independent; the pipeline holds no per-request state between calls.
type Pipeline struct {
	detector  *IntentDetector
	selector  *Selector
	compactor *ctxengine.Compactor
	caller    *provider.Caller
	pins      memory.PinStore
	calls     memory.CallLog
	journal   Recorder
	cfg       PipelineConfig
	logger    *slog.Logger
	tracer    trace.Tracer

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

// PipelineOption configures optional Pipeline behavior.
type PipelineOption func(*Pipeline)

// WithPipelineLogger injects a structured logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithPipelineClock injects a clock for testing.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// WithRecorder injects the journal recorder.
func WithRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) { p.journal = r }
}

// WithCallLog injects the telemetry call log.
func WithCallLog(log memory.CallLog) PipelineOption {
	return func(p *Pipeline) { p.calls = log }
}

// WithPinStore injects the pin store used for inline pin capture.
func WithPinStore(pins memory.PinStore) PipelineOption {
	return func(p *Pipeline) { p.pins = pins }
}

// NewPipeline wires the pipeline from its stages.
func NewPipeline(detector *IntentDetector, selector *Selector, compactor *ctxengine.Compactor, caller *provider.Caller, cfg PipelineConfig, opts ...PipelineOption) *Pipeline {
	cfg.defaults()
	p := &Pipeline{
		detector:  detector,
		selector:  selector,
		compactor: compactor,
		caller:    caller,
		journal:   nopRecorder{},
		cfg:       cfg,
		tracer:    otel.Tracer("router"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p
}

// requestRecord is one line in the request journal.
type requestRecord struct {
	Time      time.Time           `json:"time"`
	Intent    Intent              `json:"intent"`
	Priority  Priority            `json:"priority"`
	Decision  RouteDecision       `json:"decision"`
	Winner    string              `json:"winner_provider,omitempty"`
	Model     string              `json:"winner_model,omitempty"`
	Attempts  []provider.Attempt  `json:"attempts,omitempty"`
	Usage     provider.TokenUsage `json:"usage"`
	CostUSD   float64             `json:"cost_usd"`
	LatencyMS int                 `json:"latency_ms"`
}

// errorRecord is one line in the error journal.
type errorRecord struct {
	Time     time.Time          `json:"time"`
	Stage    string             `json:"stage"`
	Intent   Intent             `json:"intent,omitempty"`
	Kind     ErrorKind          `json:"kind"`
	Message  string             `json:"message"`
	Attempts []provider.Attempt `json:"attempts,omitempty"`
}

// contextRecord is one line in the compaction journal.
type contextRecord struct {
	Time     time.Time       `json:"time"`
	Priority Priority        `json:"priority"`
	Stats    ctxengine.Stats `json:"stats"`
}

// Handle runs one request end to end and returns the completion envelope
// or a classified error.
func (p *Pipeline) Handle(ctx context.Context, req Request) (Completion, error) {
	started := p.now()

	ctx, span := p.tracer.Start(ctx, "router.handle")
	defer span.End()

	// Received.
	if len(req.Messages) == 0 {
		return Completion{}, p.fail(span, "received", IntentChat, fmt.Errorf("%w: messages must not be empty", ErrClient))
	}
	priority := p.priority(req)
	intent := p.intent(req)
	span.SetAttributes(
		attribute.String("router.intent", string(intent)),
		attribute.String("router.priority", string(priority)),
	)

	p.capturePins(ctx, req.Messages)

	// Compacting.
	msgs, stats := p.compact(ctx, req.Messages, priority)

	// Routing.
	decision, err := p.route(ctx, req, intent, priority, stats.TokensAfter)
	if err != nil {
		return Completion{}, p.fail(span, "routing", intent, err)
	}
	span.SetAttributes(
		attribute.String("router.provider", decision.Provider),
		attribute.String("router.tier", decision.Tier),
		attribute.Bool("router.forced", decision.Forced),
	)

	// Calling.
	sel := p.selection(req, intent, priority, stats.TokensAfter)
	chain := p.selector.BuildChain(sel, decision)

	callCtx, callSpan := p.tracer.Start(ctx, "router.call",
		trace.WithAttributes(attribute.Int("router.chain_length", len(chain))))
	resp, winner, attempts, err := p.caller.Call(callCtx, chain, provider.CompletionRequest{
		Messages:    msgs,
		MaxTokens:   sel.CompletionTokens,
		Temperature: req.Temperature,
	})
	callSpan.End()
	if err != nil {
		err = p.classifyCallError(err, attempts)
		p.journal.Record(StreamErrors, errorRecord{
			Time:     p.now().UTC(),
			Stage:    "calling",
			Intent:   intent,
			Kind:     kindOf(err),
			Message:  err.Error(),
			Attempts: attempts,
		})
		return Completion{}, p.fail(span, "calling", intent, err)
	}

	// Succeeded.
	latency := p.now().Sub(started)
	cost := p.actualCost(winner, resp.Usage)
	p.record(ctx, decision, winner, resp, attempts, cost, latency)

	p.logger.Info("request routed",
		"intent", intent,
		"provider", winner.Provider,
		"model", winner.Model,
		"tier", winner.Tier,
		"forced", decision.Forced,
		"attempts", len(attempts),
		"latency_ms", latency.Milliseconds(),
	)
	return NewCompletion(resp, winner, decision, len(attempts), p.now()), nil
}

// priority resolves the request priority, defaulting when absent.
func (p *Pipeline) priority(req Request) Priority {
	if req.Metadata != nil && req.Metadata.Priority != "" {
		return Priority(req.Metadata.Priority)
	}
	return p.cfg.DefaultPriority
}

// intent resolves the request intent: an explicit metadata intent wins,
// otherwise the detector classifies the last user message.
func (p *Pipeline) intent(req Request) Intent {
	if req.Metadata != nil && req.Metadata.Intent != "" {
		return Intent(req.Metadata.Intent)
	}
	return p.detector.Detect(req.Messages)
}

// capturePins persists inline [PIN] lines so they survive restarts. Pin
// capture is best effort and never fails the request.
func (p *Pipeline) capturePins(ctx context.Context, msgs []provider.LLMMessage) {
	if p.pins == nil {
		return
	}
	for _, m := range msgs {
		if !strings.HasPrefix(m.Content, ctxengine.PinPrefix) {
			continue
		}
		content := strings.TrimSpace(strings.TrimPrefix(m.Content, ctxengine.PinPrefix))
		if content == "" {
			continue
		}
		pin := memory.Pin{
			ID:        memory.PinID(content),
			Content:   content,
			CreatedAt: p.now().UTC(),
		}
		if err := p.pins.Add(ctx, pin); err != nil {
			p.logger.Warn("pin capture failed", "pin_id", pin.ID, "error", err)
		}
	}
}

func (p *Pipeline) compact(ctx context.Context, msgs []provider.LLMMessage, priority Priority) ([]provider.LLMMessage, ctxengine.Stats) {
	ctx, span := p.tracer.Start(ctx, "router.compact")
	defer span.End()

	out, stats := p.compactor.Compact(ctx, msgs, string(priority))
	span.SetAttributes(
		attribute.Int("compact.tokens_before", stats.TokensBefore),
		attribute.Int("compact.tokens_after", stats.TokensAfter),
		attribute.Bool("compact.pinned_dropped", stats.PinnedDropped),
	)
	p.journal.Record(StreamContext, contextRecord{
		Time:     p.now().UTC(),
		Priority: priority,
		Stats:    stats,
	})
	return out, stats
}

func (p *Pipeline) route(ctx context.Context, req Request, intent Intent, priority Priority, promptTokens int) (RouteDecision, error) {
	_, span := p.tracer.Start(ctx, "router.select")
	defer span.End()

	return p.selector.Select(p.selection(req, intent, priority, promptTokens))
}

func (p *Pipeline) selection(req Request, intent Intent, priority Priority, promptTokens int) Selection {
	sel := Selection{
		Intent:           intent,
		Priority:         priority,
		PromptTokens:     promptTokens,
		CompletionTokens: req.MaxTokens,
	}
	if sel.CompletionTokens <= 0 {
		sel.CompletionTokens = p.cfg.DefaultMaxTokens
	}
	if req.Metadata != nil {
		sel.OverrideRoute = req.Metadata.Route
		sel.OverrideModel = req.Metadata.Model
	}
	if req.Model != "" && sel.OverrideModel == "" {
		sel.OverrideModel = req.Model
	}
	if intent == IntentVerify {
		sel.OriginalProvider = lastAssistantOrigin(req.Messages)
	}
	return sel
}

// classifyCallError distinguishes budget exhaustion from upstream failure
// when the whole chain was consumed.
func (p *Pipeline) classifyCallError(err error, attempts []provider.Attempt) error {
	if !errors.Is(err, provider.ErrAllCandidates) {
		return err
	}
	sawBudget := false
	for _, a := range attempts {
		switch a.Outcome {
		case provider.OutcomeBudgetRejected:
			sawBudget = true
		case provider.OutcomeOK, provider.OutcomeTransientError, provider.OutcomePermanentError:
			return err
		}
	}
	if sawBudget {
		return fmt.Errorf("%w: every candidate rejected", ErrBudgetExhausted)
	}
	return err
}

// record writes the telemetry row and request journal line for a
// successful call. Both are best effort.
func (p *Pipeline) record(ctx context.Context, decision RouteDecision, winner provider.Candidate, resp provider.CompletionResponse, attempts []provider.Attempt, cost float64, latency time.Duration) {
	if p.calls != nil {
		call := memory.RoutingCall{
			Timestamp:   p.now().UTC(),
			Provider:    winner.Provider,
			Model:       winner.Model,
			ActualModel: resp.Model,
			Agent:       p.cfg.Agent,
			TokensIn:    resp.Usage.PromptTokens,
			TokensOut:   resp.Usage.CompletionTokens,
			CostUSD:     cost,
			LatencyMS:   int(latency.Milliseconds()),
		}
		if err := p.calls.Record(ctx, call); err != nil {
			p.logger.Warn("call log write failed", "error", err)
		}
	}
	p.journal.Record(StreamRequests, requestRecord{
		Time:      p.now().UTC(),
		Intent:    decision.Intent,
		Priority:  decision.Priority,
		Decision:  decision,
		Winner:    winner.Provider,
		Model:     winner.Model,
		Attempts:  attempts,
		Usage:     resp.Usage,
		CostUSD:   cost,
		LatencyMS: int(latency.Milliseconds()),
	})
}

// actualCost prices reported usage at the winner's tier rates, falling
// back to the pre-call estimate when the upstream omits usage.
func (p *Pipeline) actualCost(winner provider.Candidate, usage provider.TokenUsage) float64 {
	if usage.TotalTokens == 0 {
		return winner.EstimatedCost
	}
	tier, ok := p.selector.tierRates(winner.Provider, winner.Tier)
	if !ok {
		return winner.EstimatedCost
	}
	return tier.cost(usage.PromptTokens, usage.CompletionTokens)
}

// fail journals a pre-call failure and annotates the span.
func (p *Pipeline) fail(span trace.Span, stage string, intent Intent, err error) error {
	kind, _ := Classify(err)
	span.SetAttributes(attribute.String("router.error_kind", string(kind)))
	if stage != "calling" {
		// Call-stage errors were journaled with their attempt log.
		p.journal.Record(StreamErrors, errorRecord{
			Time:    p.now().UTC(),
			Stage:   stage,
			Intent:  intent,
			Kind:    kind,
			Message: err.Error(),
		})
	}
	p.logger.Warn("request failed", "stage", stage, "intent", intent, "kind", kind, "error", err)
	return err
}

func kindOf(err error) ErrorKind {
	k, _ := Classify(err)
	return k
}

// lastAssistantOrigin returns the provider tag of the most recent
// assistant message, if callers supplied one.
func lastAssistantOrigin(msgs []provider.LLMMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == provider.MessageRoleAssistant && msgs[i].Origin != "" {
			return msgs[i].Origin
		}
	}
	return ""
}
