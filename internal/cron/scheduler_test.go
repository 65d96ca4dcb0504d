package cron_test

import (
	"context"
	"testing"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/cron"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/memory"
)

func TestAddBudgetFlush_RejectsBadSpec(t *testing.T) {
	s := cron.NewScheduler(nil)
	ledger := budget.New(budget.Config{})

	if err := s.AddBudgetFlush("not a cron spec", ledger, memory.NewMemSpendStore()); err == nil {
		t.Fatal("bad spec accepted")
	}
}

func TestBudgetFlush_PersistsSnapshot(t *testing.T) {
	s := cron.NewScheduler(nil)
	ledger := budget.New(budget.Config{})
	ledger.Commit("openrouter", 1.25)
	store := memory.NewMemSpendStore()

	if err := s.AddBudgetFlush("@every 1s", ledger, store); err != nil {
		t.Fatalf("AddBudgetFlush: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		spends, err := store.Load(context.Background())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(spends) == 1 && spends[0].Provider == "openrouter" && spends[0].DailyUSD == 1.25 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("flush never persisted the ledger snapshot")
}
