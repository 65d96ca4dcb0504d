package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/memory"
)

const timeLayout = time.RFC3339Nano

// PinStore implements memory.PinStore over the pins table.
type PinStore struct {
	db *sql.DB
}

// Add stores a pin. Re-adding the same ID is a no-op.
func (s *PinStore) Add(ctx context.Context, pin memory.Pin) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pins (id, content, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		pin.ID, pin.Content, pin.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: add pin: %w", err)
	}
	return nil
}

// List returns all pins, oldest first.
func (s *PinStore) List(ctx context.Context) ([]memory.Pin, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, created_at FROM pins ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list pins: %w", err)
	}
	defer rows.Close()

	var pins []memory.Pin
	for rows.Next() {
		var p memory.Pin
		var created string
		if err := rows.Scan(&p.ID, &p.Content, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan pin: %w", err)
		}
		p.CreatedAt = parseTime(created)
		pins = append(pins, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list pins: %w", err)
	}
	return pins, nil
}

// Remove deletes a pin by ID. Removing an unknown ID is a no-op.
func (s *PinStore) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pins WHERE id = ?", id); err != nil {
		return fmt.Errorf("sqlite: remove pin: %w", err)
	}
	return nil
}

// SummaryJournal implements memory.SummaryJournal over the summaries table.
type SummaryJournal struct {
	db *sql.DB
}

// Append adds one summary entry under its date key.
func (s *SummaryJournal) Append(ctx context.Context, entry memory.SummaryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (date, from_at, to_at, tier, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Date,
		entry.From.UTC().Format(timeLayout),
		entry.To.UTC().Format(timeLayout),
		entry.Tier,
		entry.Content,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append summary: %w", err)
	}
	return nil
}

// ListByDate returns a date's summaries in insertion order.
func (s *SummaryJournal) ListByDate(ctx context.Context, date string) ([]memory.SummaryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, from_at, to_at, tier, content, created_at
		FROM summaries WHERE date = ? ORDER BY id`, date)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list summaries: %w", err)
	}
	defer rows.Close()

	var entries []memory.SummaryEntry
	for rows.Next() {
		var e memory.SummaryEntry
		var from, to, created string
		if err := rows.Scan(&e.Date, &from, &to, &e.Tier, &e.Content, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan summary: %w", err)
		}
		e.From = parseTime(from)
		e.To = parseTime(to)
		e.CreatedAt = parseTime(created)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list summaries: %w", err)
	}
	return entries, nil
}

// SpendStore implements memory.SpendStore over the spend table.
type SpendStore struct {
	db *sql.DB
}

// Save replaces the persisted spend counters with the given snapshot.
func (s *SpendStore) Save(ctx context.Context, spends []budget.ProviderSpend) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: save spend: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM spend"); err != nil {
		return fmt.Errorf("sqlite: save spend: %w", err)
	}
	for _, sp := range spends {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO spend (provider, day, daily_usd, month, monthly_usd, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sp.Provider, sp.Day, sp.DailyUSD, sp.Month, sp.MonthlyUSD,
			time.Now().UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("sqlite: save spend for %q: %w", sp.Provider, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: save spend: %w", err)
	}
	return nil
}

// Load returns the persisted spend counters.
func (s *SpendStore) Load(ctx context.Context) ([]budget.ProviderSpend, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT provider, day, daily_usd, month, monthly_usd FROM spend ORDER BY provider")
	if err != nil {
		return nil, fmt.Errorf("sqlite: load spend: %w", err)
	}
	defer rows.Close()

	var spends []budget.ProviderSpend
	for rows.Next() {
		var sp budget.ProviderSpend
		if err := rows.Scan(&sp.Provider, &sp.Day, &sp.DailyUSD, &sp.Month, &sp.MonthlyUSD); err != nil {
			return nil, fmt.Errorf("sqlite: scan spend: %w", err)
		}
		spends = append(spends, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load spend: %w", err)
	}
	return spends, nil
}

// CallLog implements memory.CallLog over the routing_calls table.
type CallLog struct {
	db *sql.DB
}

// Record appends one completed call.
func (c *CallLog) Record(ctx context.Context, call memory.RoutingCall) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO routing_calls
			(timestamp, provider, model_name, actual_model, agent_name,
			 tokens_in, tokens_out, cost_usd, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.Timestamp.UTC().Format(timeLayout),
		call.Provider, call.Model, call.ActualModel, call.Agent,
		call.TokensIn, call.TokensOut, call.CostUSD, call.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("sqlite: record call: %w", err)
	}
	return nil
}

// Last returns the most recent call, or false when none exist.
func (c *CallLog) Last(ctx context.Context) (memory.RoutingCall, bool, error) {
	var call memory.RoutingCall
	var ts string
	err := c.db.QueryRowContext(ctx, `
		SELECT timestamp, provider, model_name, actual_model, agent_name,
		       tokens_in, tokens_out, cost_usd, latency_ms
		FROM routing_calls ORDER BY id DESC LIMIT 1`,
	).Scan(&ts, &call.Provider, &call.Model, &call.ActualModel, &call.Agent,
		&call.TokensIn, &call.TokensOut, &call.CostUSD, &call.LatencyMS)
	if errors.Is(err, sql.ErrNoRows) {
		return memory.RoutingCall{}, false, nil
	}
	if err != nil {
		return memory.RoutingCall{}, false, fmt.Errorf("sqlite: last call: %w", err)
	}
	call.Timestamp = parseTime(ts)
	return call, true, nil
}

// parseTime decodes a stored timestamp, tolerating malformed rows rather
// than failing reads. A zero time marks an unparseable value.
func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
