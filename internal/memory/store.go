// Package memory defines the durable storage interfaces for pinned
// context, rolling summaries, spend persistence, and routing-call
// telemetry. Implementations live under modules/memory.
package memory

import (
	"context"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
)

// Pin is a message captured via the [PIN] marker. Once stored it is
// injected into every compacted context until removed.
type Pin struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PinStore persists pinned context across restarts. Appends from
// concurrent requests must not lose entries.
type PinStore interface {
	// Add stores a pin. Adding identical content twice is a no-op.
	Add(ctx context.Context, pin Pin) error

	// List returns all pins, oldest first.
	List(ctx context.Context) ([]Pin, error)

	// Remove deletes a pin by ID.
	Remove(ctx context.Context, id string) error
}

// SummaryEntry is one rolling summary produced during compaction.
type SummaryEntry struct {
	Date      string    `json:"date"` // YYYY-MM-DD journal key
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Tier      string    `json:"tier"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SummaryJournal is the append-only journal of generated summaries,
// keyed by date. Ordering across concurrent requests is not guaranteed.
type SummaryJournal interface {
	Append(ctx context.Context, entry SummaryEntry) error
	ListByDate(ctx context.Context, date string) ([]SummaryEntry, error)
}

// SpendStore persists budget ledger counters for crash recovery.
// Best-effort: callers tolerate failures.
type SpendStore interface {
	Save(ctx context.Context, spends []budget.ProviderSpend) error
	Load(ctx context.Context) ([]budget.ProviderSpend, error)
}

// RoutingCall is one completed provider call, recorded for the dashboard.
type RoutingCall struct {
	Timestamp   time.Time `json:"timestamp"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model_name"`
	ActualModel string    `json:"actual_model"`
	Agent       string    `json:"agent_name"`
	TokensIn    int       `json:"tokens_in"`
	TokensOut   int       `json:"tokens_out"`
	CostUSD     float64   `json:"cost_usd"`
	LatencyMS   int       `json:"latency_ms"`
}

// CallLog records completed routing calls. Telemetry only: failures must
// never fail the request that produced the call.
type CallLog interface {
	Record(ctx context.Context, call RoutingCall) error
	Last(ctx context.Context) (RoutingCall, bool, error)
}
