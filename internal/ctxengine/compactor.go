package ctxengine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/estimate"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/memory"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
)

// PinPrefix marks a message that must survive compaction indefinitely.
const PinPrefix = "[PIN]"

// keepFlag marks an oversized tool-output block as necessary.
const keepFlag = "[KEEP]"

// summaryName tags synthetic summary messages so they are never
// re-summarized.
const summaryName = "context_summary"

// Compaction method labels recorded in Stats.Methods.
const (
	MethodKeep      = "keep"
	MethodStrip     = "strip"
	MethodSummarize = "summarize"
	MethodDrop      = "drop"
	MethodHardDrop  = "hard_drop"
)

// Summarizer produces a condensed summary of a conversation segment using
// the given model tier, bounded to maxTokens.
type Summarizer interface {
	Summarize(ctx context.Context, messages []provider.LLMMessage, tier string, maxTokens int) (string, error)
}

// Stats describes what one Compact call did.
type Stats struct {
	TokensBefore   int      `json:"input_tokens_before"`
	TokensAfter    int      `json:"input_tokens_after"`
	Target         int      `json:"target_input_tokens"`
	HardMax        int      `json:"hard_max_input_tokens"`
	Methods        []string `json:"methods"`
	PinnedIncluded bool     `json:"pinned_included"`
	PinnedDropped  bool     `json:"pinned_dropped"`
	SummarizerTier string   `json:"summarizer_tier,omitempty"`
	Stripped       int      `json:"stripped"`
}

// Compactor reduces a message list to fit token budgets while preserving
// system messages and pinned content. It never fails a request: when
// summarization is unavailable it degrades to dropping oldest messages.
type Compactor struct {
	estimator  estimate.TokenEstimator
	summarizer Summarizer
	pins       memory.PinStore
	journal    memory.SummaryJournal
	cfg        Config
	logger     *slog.Logger

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time

	// lastSummaryTo chains consecutive journal entries so each summary's
	// range opens where the previous one ended.
	mu            sync.Mutex
	lastSummaryTo time.Time
}

// Option configures optional Compactor behavior.
type Option func(*Compactor)

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compactor) { c.logger = l }
}

// WithClock injects a clock for testing.
func WithClock(now func() time.Time) Option {
	return func(c *Compactor) { c.now = now }
}

// NewCompactor creates a Compactor. A nil summarizer disables summary
// generation; compaction still works by dropping old messages. A nil
// pin store or journal disables the corresponding persistence.
func NewCompactor(summarizer Summarizer, estimator estimate.TokenEstimator, pins memory.PinStore, journal memory.SummaryJournal, cfg Config, opts ...Option) *Compactor {
	c := &Compactor{
		estimator:  estimator,
		summarizer: summarizer,
		pins:       pins,
		journal:    journal,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// item annotates one message during compaction.
type item struct {
	msg     provider.LLMMessage
	system  bool
	pinned  bool
	summary bool
	dropped bool
}

// Compact reduces messages to the token budget for the given priority.
// Pins from the store are injected as a synthetic system message; inline
// [PIN]-prefixed messages are protected in place.
func (c *Compactor) Compact(ctx context.Context, messages []provider.LLMMessage, priority string) ([]provider.LLMMessage, Stats) {
	limits := c.cfg.limitsFor(priority)

	items := c.assemble(ctx, messages)

	stats := Stats{
		Target:  limits.TargetInputTokens,
		HardMax: limits.HardMaxInputTokens,
	}
	stats.TokensBefore = c.tokens(items)

	// Step 2: strip obvious noise before spending tokens on counting it.
	if stripped := c.stripNoise(items); stripped > 0 {
		stats.Stripped = stripped
		stats.Methods = append(stats.Methods, MethodStrip)
	}

	// Step 3: small enough already.
	if c.tokens(items) <= limits.TargetInputTokens {
		stats.Methods = append(stats.Methods, MethodKeep)
		return c.finish(items, &stats)
	}

	// Step 4-5: summarize oldest spans, then drop.
	c.summarizeLoop(ctx, items, limits.TargetInputTokens, priority, &stats)
	c.dropLoop(items, limits.TargetInputTokens, MethodDrop, false, &stats)

	// Step 6: hard backstop; may sacrifice pinned content as a last resort.
	if c.tokens(items) > limits.HardMaxInputTokens {
		c.dropLoop(items, limits.HardMaxInputTokens, MethodHardDrop, true, &stats)
	}

	return c.finish(items, &stats)
}

// assemble builds the working item list: behavior-rule snapshot first,
// then the pinned-context snapshot, then the conversation in order.
func (c *Compactor) assemble(ctx context.Context, messages []provider.LLMMessage) []item {
	items := make([]item, 0, len(messages)+2)

	if c.cfg.BehaviorRules != "" {
		items = append(items, item{
			msg: provider.LLMMessage{
				Role:    provider.MessageRoleSystem,
				Content: "Behavior rules:\n" + c.cfg.BehaviorRules,
			},
			system: true,
		})
	}

	if c.pins != nil {
		pins, err := c.pins.List(ctx)
		if err != nil {
			c.logger.Warn("pin store unavailable, compacting without stored pins", "error", err)
		} else if len(pins) > 0 {
			var b strings.Builder
			b.WriteString("Pinned context:\n")
			for _, p := range pins {
				b.WriteString(p.Content)
				b.WriteString("\n")
			}
			items = append(items, item{
				msg: provider.LLMMessage{
					Role:    provider.MessageRoleSystem,
					Content: b.String(),
				},
				pinned: true,
			})
		}
	}

	for _, m := range messages {
		items = append(items, item{
			msg:    m,
			system: m.Role == provider.MessageRoleSystem,
			pinned: strings.HasPrefix(m.Content, PinPrefix),
		})
	}
	return items
}

// stripNoise drops exact-duplicate assistant messages, oversized
// tool-output blocks, and repeated banner boilerplate. Protected items
// (system, pinned) are never touched. Returns the number of drops.
func (c *Compactor) stripNoise(items []item) int {
	stripped := 0
	seenAssistant := map[string]bool{}
	seenBanner := map[string]bool{}

	for i := range items {
		it := &items[i]
		if it.dropped || it.system || it.pinned {
			continue
		}

		if it.msg.Role == provider.MessageRoleAssistant {
			if seenAssistant[it.msg.Content] {
				it.dropped = true
				stripped++
				continue
			}
			seenAssistant[it.msg.Content] = true
		}

		if isToolOutput(it.msg.Content) &&
			len(it.msg.Content) > c.cfg.ToolOutputMaxChars &&
			!strings.Contains(it.msg.Content, keepFlag) {
			it.dropped = true
			stripped++
			continue
		}

		for _, pattern := range c.cfg.BannerPatterns {
			if pattern == "" || !strings.Contains(it.msg.Content, pattern) {
				continue
			}
			if seenBanner[pattern] {
				it.dropped = true
				stripped++
			}
			seenBanner[pattern] = true
			break
		}
	}
	return stripped
}

// summarizeLoop replaces oldest unprotected spans with synthetic summary
// messages until the target is met or no span remains. Summarizer errors
// degrade to the drop phase rather than failing the request.
func (c *Compactor) summarizeLoop(ctx context.Context, items []item, target int, priority string, stats *Stats) {
	if c.summarizer == nil {
		return
	}
	tier := c.cfg.summaryTierFor(priority)

	for c.tokens(items) > target {
		span := c.oldestSpan(items)
		if len(span) == 0 {
			return
		}

		msgs := make([]provider.LLMMessage, 0, len(span))
		for _, idx := range span {
			msgs = append(msgs, items[idx].msg)
		}

		summary, err := c.summarizer.Summarize(ctx, msgs, tier, c.cfg.Summary.MaxTokens)
		if err != nil {
			c.logger.Warn("summarization failed, degrading to drop",
				"tier", tier,
				"span", len(span),
				"error", err,
			)
			return
		}

		// Replace the span: first slot becomes the summary, rest are dropped.
		items[span[0]].msg = provider.LLMMessage{
			Role:    provider.MessageRoleAssistant,
			Name:    summaryName,
			Content: "[Conversation summary]\n" + summary,
		}
		items[span[0]].summary = true
		for _, idx := range span[1:] {
			items[idx].dropped = true
		}

		stats.Methods = append(stats.Methods, MethodSummarize)
		stats.SummarizerTier = tier
		c.persistSummary(ctx, summary, tier)
	}
}

// oldestSpan returns the indices of the oldest contiguous run of
// unprotected, not-yet-summarized messages, capped at SpanMessages.
func (c *Compactor) oldestSpan(items []item) []int {
	var span []int
	for i := range items {
		it := &items[i]
		if it.dropped || it.system || it.pinned || it.summary {
			if len(span) > 0 {
				return span
			}
			continue
		}
		span = append(span, i)
		if len(span) >= c.cfg.Summary.SpanMessages {
			return span
		}
	}
	// A span that runs to the end would summarize the latest user turn;
	// leave the final message in place.
	if len(span) > 1 {
		return span[:len(span)-1]
	}
	return nil
}

// dropLoop drops oldest unprotected messages until under limit. When
// includePinned is set (hard backstop), pinned items are sacrificed too,
// oldest first, and the violation is logged.
func (c *Compactor) dropLoop(items []item, limit int, method string, includePinned bool, stats *Stats) {
	for c.tokens(items) > limit {
		idx := -1
		for i := range items {
			if items[i].dropped || items[i].system {
				continue
			}
			if items[i].pinned && !includePinned {
				continue
			}
			if items[i].pinned {
				// Prefer any remaining unpinned item before a pin.
				if j := oldestUnpinned(items, i); j >= 0 {
					idx = j
					break
				}
			}
			idx = i
			break
		}
		if idx < 0 {
			return
		}

		if items[idx].pinned {
			stats.PinnedDropped = true
			c.logger.Warn("pinned content dropped by hard backstop",
				"hard_max_tokens", limit,
			)
		}
		items[idx].dropped = true
		stats.Methods = append(stats.Methods, method)
	}
}

// oldestUnpinned finds the first live unpinned, non-system item at or
// after start.
func oldestUnpinned(items []item, start int) int {
	for i := start; i < len(items); i++ {
		if !items[i].dropped && !items[i].system && !items[i].pinned {
			return i
		}
	}
	return -1
}

// tokens estimates the live items' total token count.
func (c *Compactor) tokens(items []item) int {
	total := 0
	for i := range items {
		if items[i].dropped {
			continue
		}
		total += 4 // per-message role/formatting overhead
		total += c.estimator.Estimate(items[i].msg.Content)
		if items[i].msg.Name != "" {
			total += c.estimator.Estimate(items[i].msg.Name)
		}
	}
	return total
}

// finish materializes the live items and closes out the stats.
func (c *Compactor) finish(items []item, stats *Stats) ([]provider.LLMMessage, Stats) {
	out := make([]provider.LLMMessage, 0, len(items))
	anyPin := false
	pinKept := false
	for i := range items {
		if items[i].pinned {
			anyPin = true
		}
		if items[i].dropped {
			continue
		}
		if items[i].pinned {
			pinKept = true
		}
		out = append(out, items[i].msg)
	}
	stats.PinnedIncluded = !anyPin || pinKept
	stats.TokensAfter = c.tokens(items)
	if len(stats.Methods) == 0 {
		stats.Methods = append(stats.Methods, MethodKeep)
	}
	return out, *stats
}

// persistSummary appends the raw summary text to the dated journal.
// Journal failures are logged, never surfaced.
func (c *Compactor) persistSummary(ctx context.Context, summary, tier string) {
	if c.journal == nil {
		return
	}
	now := c.now().UTC()
	err := c.journal.Append(ctx, memory.SummaryEntry{
		Date:      now.Format("2006-01-02"),
		From:      c.previousSummaryEnd(ctx, now),
		To:        now,
		Tier:      tier,
		Content:   summary,
		CreatedAt: now,
	})
	if err != nil {
		c.logger.Warn("summary journal append failed", "error", err)
		return
	}
	c.mu.Lock()
	c.lastSummaryTo = now
	c.mu.Unlock()
}

// previousSummaryEnd returns the To of the most recently persisted summary
// so consecutive entries cover contiguous time ranges. After a restart the
// same-day journal is consulted; a zero time means the range opens at the
// start of the conversation history.
func (c *Compactor) previousSummaryEnd(ctx context.Context, now time.Time) time.Time {
	c.mu.Lock()
	last := c.lastSummaryTo
	c.mu.Unlock()
	if !last.IsZero() {
		return last
	}

	entries, err := c.journal.ListByDate(ctx, now.Format("2006-01-02"))
	if err != nil || len(entries) == 0 {
		return time.Time{}
	}
	return entries[len(entries)-1].To
}

// isToolOutput reports whether a message body looks like a pasted tool
// result rather than conversation.
func isToolOutput(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, "[TOOL]") ||
		strings.HasPrefix(trimmed, "Tool output:") ||
		strings.HasPrefix(trimmed, "$ ")
}
