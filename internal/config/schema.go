// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for the router.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Gateway    GatewayConfig             `yaml:"gateway"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Budget     BudgetConfig              `yaml:"budget"`
	Routing    RoutingConfig             `yaml:"routing"`
	Tokens     TokensConfig              `yaml:"tokens"`
	Compaction CompactionConfig          `yaml:"compaction"`
	Memory     MemoryConfig              `yaml:"memory"`
	Logging    LoggingConfig             `yaml:"logging"`
	Telemetry  TelemetryConfig           `yaml:"telemetry"`
	Jobs       JobsConfig                `yaml:"jobs"`
}

// GatewayConfig holds HTTP gateway settings.
type GatewayConfig struct {
	Bind            string        `yaml:"bind"`
	BearerToken     string        `yaml:"bearer_token"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

func (c *GatewayConfig) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8090"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 180 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 150 * time.Second
	}
}

// ProviderConfig describes one upstream provider.
type ProviderConfig struct {
	// Kind selects the client implementation. Currently only
	// "openai_compatible" is supported.
	Kind string `yaml:"kind"`

	BaseURL string            `yaml:"base_url"`
	APIKey  string            `yaml:"api_key"`
	Headers map[string]string `yaml:"headers"`

	// Free marks zero-cost local inference backends.
	Free bool `yaml:"free"`

	// Disabled removes the provider from routing without deleting its config.
	Disabled bool `yaml:"disabled"`

	// ProbeURL is polled by the health surface (e.g. LM Studio /v1/models).
	ProbeURL string `yaml:"probe_url"`

	Timeout time.Duration `yaml:"timeout"`

	// Tiers is the ordered list of model tiers this provider offers.
	Tiers []TierConfig `yaml:"tiers"`
}

func (c *ProviderConfig) defaults() {
	if c.Kind == "" {
		c.Kind = "openai_compatible"
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
}

// TierConfig binds a tier label to a concrete model and its cost rates.
type TierConfig struct {
	Name             string  `yaml:"name"`
	Model            string  `yaml:"model"`
	InputUSDPerMTok  float64 `yaml:"input_usd_per_mtok"`
	OutputUSDPerMTok float64 `yaml:"output_usd_per_mtok"`
}

// BudgetConfig holds spend caps.
type BudgetConfig struct {
	// MonthlyCapUSD is the default per-provider monthly cap. Default: 60.
	MonthlyCapUSD float64 `yaml:"monthly_cap_usd"`

	// DailyCapUSD overrides the derived daily cap (monthly/30) when set.
	DailyCapUSD float64 `yaml:"daily_cap_usd"`

	// PerProvider overrides caps for named providers.
	PerProvider map[string]ProviderCaps `yaml:"per_provider"`
}

// ProviderCaps overrides the default caps for one provider.
type ProviderCaps struct {
	MonthlyCapUSD float64 `yaml:"monthly_cap_usd"`
	DailyCapUSD   float64 `yaml:"daily_cap_usd"`
}

// RoutingConfig holds the routing policy table and override switches.
type RoutingConfig struct {
	DefaultPriority string `yaml:"default_priority"`

	// AllowRouteOverride and AllowModelOverride gate metadata overrides.
	// Both default to true.
	AllowRouteOverride *bool `yaml:"allow_route_override"`
	AllowModelOverride *bool `yaml:"allow_model_override"`

	// IntentKeywords supplies extra heuristic keywords per intent.
	IntentKeywords map[string][]string `yaml:"intent_keywords"`

	// Policies maps an intent to its tier and preferred provider ordering.
	Policies map[string]PolicyConfig `yaml:"policies"`
}

func (c *RoutingConfig) defaults() {
	if c.DefaultPriority == "" {
		c.DefaultPriority = "normal"
	}
}

// RouteOverrideAllowed reports whether metadata.route is honored.
func (c RoutingConfig) RouteOverrideAllowed() bool {
	return c.AllowRouteOverride == nil || *c.AllowRouteOverride
}

// ModelOverrideAllowed reports whether metadata.model is honored.
func (c RoutingConfig) ModelOverrideAllowed() bool {
	return c.AllowModelOverride == nil || *c.AllowModelOverride
}

// PolicyConfig is one row of the routing policy table.
type PolicyConfig struct {
	Tier      string   `yaml:"tier"`
	Providers []string `yaml:"providers"`
}

// TokensConfig holds token estimation and context budget settings.
type TokensConfig struct {
	CharsPerToken   float64 `yaml:"chars_per_token"`
	SafetyMarginPct float64 `yaml:"safety_margin_pct"`

	// DefaultMaxTokens is the completion budget assumed when a request
	// does not set max_tokens. Used for cost projection.
	DefaultMaxTokens int `yaml:"default_max_tokens"`

	// Priorities maps a priority label to its context token limits.
	Priorities map[string]PriorityTokens `yaml:"priorities"`

	Summary SummaryConfig `yaml:"summary"`
}

func (c *TokensConfig) defaults() {
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = 4
	}
	if c.SafetyMarginPct <= 0 {
		c.SafetyMarginPct = 10
	}
	if c.DefaultMaxTokens <= 0 {
		c.DefaultMaxTokens = 512
	}
	if c.Priorities == nil {
		c.Priorities = map[string]PriorityTokens{
			"low":    {TargetInputTokens: 4000, HardMaxInputTokens: 8000},
			"normal": {TargetInputTokens: 6000, HardMaxInputTokens: 10000},
			"high":   {TargetInputTokens: 9000, HardMaxInputTokens: 16000},
		}
	}
	c.Summary.defaults()
}

// PriorityTokens holds the context budget for one priority level.
type PriorityTokens struct {
	TargetInputTokens  int `yaml:"target_input_tokens"`
	HardMaxInputTokens int `yaml:"hard_max_input_tokens"`
}

// SummaryConfig tunes rolling-summary generation during compaction.
type SummaryConfig struct {
	// MinTokens and MaxTokens bound the requested summary length.
	// Defaults: 350 and 500.
	MinTokens int `yaml:"min_tokens"`
	MaxTokens int `yaml:"max_tokens"`

	// Tier is the model tier used for summarization. Default: FALLBACK_CHEAP.
	Tier string `yaml:"tier"`

	// HighPriorityTier is used instead when the request priority is high.
	HighPriorityTier string `yaml:"high_priority_tier"`
}

func (c *SummaryConfig) defaults() {
	if c.MinTokens <= 0 {
		c.MinTokens = 350
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 500
	}
	if c.Tier == "" {
		c.Tier = "FALLBACK_CHEAP"
	}
}

// CompactionConfig tunes context noise stripping.
type CompactionConfig struct {
	// ToolOutputMaxChars drops tool-output blocks larger than this unless
	// flagged necessary. Default: 4000.
	ToolOutputMaxChars int `yaml:"tool_output_max_chars"`

	// BannerPatterns lists boilerplate substrings stripped when repeated.
	BannerPatterns []string `yaml:"banner_patterns"`

	// BehaviorRulesFile points at the markdown behavior-rule text injected
	// as a snapshot into every compacted context.
	BehaviorRulesFile string `yaml:"behavior_rules_file"`
}

func (c *CompactionConfig) defaults() {
	if c.ToolOutputMaxChars <= 0 {
		c.ToolOutputMaxChars = 4000
	}
}

// MemoryConfig holds durable storage settings.
type MemoryConfig struct {
	// Path is the sqlite database file for pins, summaries, and spend.
	Path string `yaml:"path"`
}

func (c *MemoryConfig) defaults() {
	if c.Path == "" {
		c.Path = "data/arden.db"
	}
}

// LoggingConfig holds journal settings.
type LoggingConfig struct {
	Dir        string `yaml:"dir"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func (c *LoggingConfig) defaults() {
	if c.Dir == "" {
		c.Dir = "logs"
	}
	if c.Level == "" {
		c.Level = "info"
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 20
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
}

// TelemetryConfig holds tracing settings.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // otlp | stdout
	Endpoint string `yaml:"endpoint"`
}

func (c *TelemetryConfig) defaults() {
	if c.Exporter == "" {
		c.Exporter = "stdout"
	}
}

// JobsConfig holds cron specs for background housekeeping.
type JobsConfig struct {
	// BudgetFlush persists the spend ledger on this schedule.
	// Default: every 5 minutes.
	BudgetFlush string `yaml:"budget_flush"`
}

func (c *JobsConfig) defaults() {
	if c.BudgetFlush == "" {
		c.BudgetFlush = "*/5 * * * *"
	}
}

// Defaults fills zero-valued fields across all sections.
func (c *Config) Defaults() {
	c.Gateway.defaults()
	for name, p := range c.Providers {
		p.defaults()
		c.Providers[name] = p
	}
	c.Routing.defaults()
	c.Tokens.defaults()
	c.Compaction.defaults()
	c.Memory.defaults()
	c.Logging.defaults()
	c.Telemetry.defaults()
	c.Jobs.defaults()
}
