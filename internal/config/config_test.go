package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/config"
)

const validYAML = `
version: "1"
providers:
  openrouter:
    base_url: https://openrouter.ai/api/v1
    api_key: sk-test
    tiers:
      - name: CHEAP_CHAT
        model: gpt-4o-mini
        input_usd_per_mtok: 0.15
        output_usd_per_mtok: 0.6
  lmstudio:
    base_url: http://127.0.0.1:1234/v1
    free: true
    tiers:
      - name: CHEAP_CHAT
        model: qwen2.5-14b
routing:
  policies:
    chat:
      tier: CHEAP_CHAT
      providers: [lmstudio, openrouter]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arden.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Gateway.Bind != "127.0.0.1:8090" {
		t.Errorf("default bind = %q", cfg.Gateway.Bind)
	}
	if cfg.Providers["openrouter"].Kind != "openai_compatible" {
		t.Errorf("default kind = %q", cfg.Providers["openrouter"].Kind)
	}
	if cfg.Tokens.CharsPerToken != 4 {
		t.Errorf("default chars_per_token = %v", cfg.Tokens.CharsPerToken)
	}
	if got := cfg.Tokens.Priorities["normal"].TargetInputTokens; got != 6000 {
		t.Errorf("default normal target = %d, want 6000", got)
	}
	if cfg.Tokens.Summary.Tier != "FALLBACK_CHEAP" {
		t.Errorf("default summary tier = %q", cfg.Tokens.Summary.Tier)
	}
	if cfg.Jobs.BudgetFlush != "*/5 * * * *" {
		t.Errorf("default budget_flush = %q", cfg.Jobs.BudgetFlush)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_ARDEN_KEY", "sk-from-env")

	yaml := strings.Replace(validYAML, "sk-test", "${TEST_ARDEN_KEY}", 1)
	cfg, err := config.Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Providers["openrouter"].APIKey; got != "sk-from-env" {
		t.Errorf("APIKey = %q, want sk-from-env", got)
	}
}

func TestLoad_EnvDefault(t *testing.T) {
	yaml := strings.Replace(validYAML, "sk-test", "${UNSET_ARDEN_VAR:-fallback}", 1)
	cfg, err := config.Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Providers["openrouter"].APIKey; got != "fallback" {
		t.Errorf("APIKey = %q, want fallback", got)
	}
}

func TestLoad_UnresolvedEnvVarFails(t *testing.T) {
	yaml := strings.Replace(validYAML, "sk-test", "${UNSET_ARDEN_VAR_NO_DEFAULT}", 1)
	if _, err := config.Load(writeConfig(t, yaml)); err == nil {
		t.Fatal("Load succeeded with unresolved variable")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{
			"missing version",
			func(c *config.Config) { c.Version = "" },
			"version field is required",
		},
		{
			"unsupported version",
			func(c *config.Config) { c.Version = "2" },
			"unsupported version",
		},
		{
			"no providers",
			func(c *config.Config) { c.Providers = nil },
			"at least one provider",
		},
		{
			"policy references unknown provider",
			func(c *config.Config) {
				c.Routing.Policies["chat"] = config.PolicyConfig{Tier: "CHEAP_CHAT", Providers: []string{"ghost"}}
			},
			"unknown provider",
		},
		{
			"policy references missing tier",
			func(c *config.Config) {
				c.Routing.Policies["chat"] = config.PolicyConfig{Tier: "NO_SUCH", Providers: []string{"openrouter"}}
			},
			"does not define tier",
		},
		{
			"unknown intent",
			func(c *config.Config) {
				c.Routing.Policies["prophecy"] = config.PolicyConfig{Tier: "CHEAP_CHAT", Providers: []string{"openrouter"}}
			},
			"unknown intent",
		},
		{
			"hard max below target",
			func(c *config.Config) {
				c.Tokens.Priorities["normal"] = config.PriorityTokens{TargetInputTokens: 6000, HardMaxInputTokens: 10}
			},
			"hard_max_input_tokens below",
		},
		{
			"summary bounds inverted",
			func(c *config.Config) {
				c.Tokens.Summary.MinTokens = 500
				c.Tokens.Summary.MaxTokens = 350
			},
			"max_tokens below min_tokens",
		},
		{
			"bad cron spec",
			func(c *config.Config) { c.Jobs.BudgetFlush = "not a cron line" },
			"invalid cron spec",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(writeConfig(t, validYAML))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)

			err = config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not contain %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_PaidTierWithoutRates(t *testing.T) {
	yaml := strings.Replace(validYAML, "input_usd_per_mtok: 0.15", "input_usd_per_mtok: 0", 1)
	cfg, err := config.Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "missing cost rate") {
		t.Fatalf("Validate = %v, want missing cost rate error", err)
	}
}
