package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
)

// PinID derives a stable identifier from pin content so re-pinning the
// same text is idempotent.
func PinID(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:8])
}

// MemPinStore is an in-memory PinStore for tests and storage-less runs.
type MemPinStore struct {
	mu   sync.Mutex
	pins []Pin
	byID map[string]int
}

// NewMemPinStore creates an empty in-memory pin store.
func NewMemPinStore() *MemPinStore {
	return &MemPinStore{byID: make(map[string]int)}
}

// Add implements PinStore.
func (s *MemPinStore) Add(_ context.Context, pin Pin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pin.ID == "" {
		pin.ID = PinID(pin.Content)
	}
	if _, exists := s.byID[pin.ID]; exists {
		return nil
	}
	if pin.CreatedAt.IsZero() {
		pin.CreatedAt = time.Now().UTC()
	}
	s.byID[pin.ID] = len(s.pins)
	s.pins = append(s.pins, pin)
	return nil
}

// List implements PinStore.
func (s *MemPinStore) List(_ context.Context) ([]Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Pin, len(s.pins))
	copy(out, s.pins)
	return out, nil
}

// Remove implements PinStore.
func (s *MemPinStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return nil
	}
	s.pins = append(s.pins[:i], s.pins[i+1:]...)
	delete(s.byID, id)
	for j := i; j < len(s.pins); j++ {
		s.byID[s.pins[j].ID] = j
	}
	return nil
}

// MemSummaryJournal is an in-memory SummaryJournal.
type MemSummaryJournal struct {
	mu      sync.Mutex
	entries map[string][]SummaryEntry
}

// NewMemSummaryJournal creates an empty in-memory summary journal.
func NewMemSummaryJournal() *MemSummaryJournal {
	return &MemSummaryJournal{entries: make(map[string][]SummaryEntry)}
}

// Append implements SummaryJournal.
func (j *MemSummaryJournal) Append(_ context.Context, entry SummaryEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	j.entries[entry.Date] = append(j.entries[entry.Date], entry)
	return nil
}

// ListByDate implements SummaryJournal.
func (j *MemSummaryJournal) ListByDate(_ context.Context, date string) ([]SummaryEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	src := j.entries[date]
	out := make([]SummaryEntry, len(src))
	copy(out, src)
	return out, nil
}

// MemSpendStore is an in-memory SpendStore.
type MemSpendStore struct {
	mu     sync.Mutex
	spends []budget.ProviderSpend
}

// NewMemSpendStore creates an empty in-memory spend store.
func NewMemSpendStore() *MemSpendStore {
	return &MemSpendStore{}
}

// Save implements SpendStore.
func (s *MemSpendStore) Save(_ context.Context, spends []budget.ProviderSpend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spends = append([]budget.ProviderSpend(nil), spends...)
	return nil
}

// Load implements SpendStore.
func (s *MemSpendStore) Load(_ context.Context) ([]budget.ProviderSpend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]budget.ProviderSpend(nil), s.spends...), nil
}

// MemCallLog is an in-memory CallLog.
type MemCallLog struct {
	mu    sync.Mutex
	calls []RoutingCall
}

// NewMemCallLog creates an empty in-memory call log.
func NewMemCallLog() *MemCallLog {
	return &MemCallLog{}
}

// Record implements CallLog.
func (l *MemCallLog) Record(_ context.Context, call RoutingCall) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
	return nil
}

// Last implements CallLog.
func (l *MemCallLog) Last(_ context.Context) (RoutingCall, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.calls) == 0 {
		return RoutingCall{}, false, nil
	}
	return l.calls[len(l.calls)-1], true, nil
}

// Calls returns a copy of all recorded calls. Test helper.
func (l *MemCallLog) Calls() []RoutingCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]RoutingCall(nil), l.calls...)
}
