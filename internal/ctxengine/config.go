// Package ctxengine implements context-window compaction: pin
// preservation, noise stripping, rolling summarization, and recency
// trimming against per-priority token budgets.
package ctxengine

// Limits holds the token budget for one priority level.
type Limits struct {
	// TargetInputTokens is the soft ceiling compaction tries to reach
	// before resorting to summarization or dropping.
	TargetInputTokens int

	// HardMaxInputTokens is the absolute ceiling. Only pinned content
	// that alone exceeds it may push the result above this value.
	HardMaxInputTokens int
}

// SummarySettings tunes rolling-summary generation.
type SummarySettings struct {
	// MinTokens and MaxTokens bound the requested summary length.
	MinTokens int
	MaxTokens int

	// Tier is the model tier used for summarization by default.
	Tier string

	// HighPriorityTier replaces Tier when the request priority is high.
	HighPriorityTier string

	// SpanMessages caps how many messages one summarization pass covers.
	SpanMessages int
}

// Config holds the compactor's tuning knobs.
type Config struct {
	// Priorities maps a priority label to its token limits.
	Priorities map[string]Limits

	// DefaultPriority applies when a request carries no priority.
	DefaultPriority string

	Summary SummarySettings

	// ToolOutputMaxChars drops tool-output blocks larger than this
	// unless they carry the keep flag.
	ToolOutputMaxChars int

	// BannerPatterns lists boilerplate substrings; repeated occurrences
	// are stripped.
	BannerPatterns []string

	// BehaviorRules is a snapshot of the assistant's behavior-rule text,
	// injected as a system message into every compacted context.
	BehaviorRules string
}

// withDefaults returns a copy of cfg with zero-valued fields filled.
func (cfg Config) withDefaults() Config {
	if cfg.Priorities == nil {
		cfg.Priorities = map[string]Limits{
			"low":    {TargetInputTokens: 4000, HardMaxInputTokens: 8000},
			"normal": {TargetInputTokens: 6000, HardMaxInputTokens: 10000},
			"high":   {TargetInputTokens: 9000, HardMaxInputTokens: 16000},
		}
	}
	if cfg.DefaultPriority == "" {
		cfg.DefaultPriority = "normal"
	}
	if cfg.Summary.MinTokens <= 0 {
		cfg.Summary.MinTokens = 350
	}
	if cfg.Summary.MaxTokens <= 0 {
		cfg.Summary.MaxTokens = 500
	}
	if cfg.Summary.SpanMessages <= 0 {
		cfg.Summary.SpanMessages = 12
	}
	if cfg.ToolOutputMaxChars <= 0 {
		cfg.ToolOutputMaxChars = 4000
	}
	return cfg
}

// limitsFor returns the token limits for a priority, falling back to the
// default priority's limits.
func (cfg Config) limitsFor(priority string) Limits {
	if l, ok := cfg.Priorities[priority]; ok {
		return l
	}
	return cfg.Priorities[cfg.DefaultPriority]
}

// summaryTierFor returns the summarizer tier for a priority.
func (cfg Config) summaryTierFor(priority string) string {
	if priority == "high" && cfg.Summary.HighPriorityTier != "" {
		return cfg.Summary.HighPriorityTier
	}
	return cfg.Summary.Tier
}
