package router

import (
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/config"
)

// PolicyRow is the routing table entry for one intent: a target tier and
// the provider ordering to try it on.
type PolicyRow struct {
	Tier      string
	Providers []string
}

// Policy maps intents to tier/provider rows. It is built once from config
// and never mutated.
type Policy struct {
	rows map[Intent]PolicyRow
}

// NewPolicy builds the routing table from validated config. Rows are
// copied so later config reloads cannot alias into a live policy.
func NewPolicy(cfg config.RoutingConfig) Policy {
	rows := make(map[Intent]PolicyRow, len(cfg.Policies))
	for name, pc := range cfg.Policies {
		rows[Intent(name)] = PolicyRow{
			Tier:      pc.Tier,
			Providers: append([]string(nil), pc.Providers...),
		}
	}
	return Policy{rows: rows}
}

// Row returns the policy row for an intent. Verify falls back to the
// reasoning row when it has no row of its own, and every intent falls back
// to chat as a last resort.
func (p Policy) Row(intent Intent) (PolicyRow, bool) {
	if row, ok := p.rows[intent]; ok {
		return row, true
	}
	if intent == IntentVerify {
		if row, ok := p.rows[IntentReasoning]; ok {
			return row, true
		}
	}
	row, ok := p.rows[IntentChat]
	return row, ok
}
