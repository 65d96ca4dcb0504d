package gateway

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
)

// NewMetrics registers on the default registry, so one instance is shared
// across the test binary.
var testMetrics = NewMetrics()

func TestMetrics_ObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.requests.WithLabelValues("chat", "lmstudio", "ok"))

	testMetrics.ObserveRequest("chat", "lmstudio", "ok", 120*time.Millisecond)
	testMetrics.ObserveRequest("chat", "lmstudio", "ok", 80*time.Millisecond)

	after := testutil.ToFloat64(testMetrics.requests.WithLabelValues("chat", "lmstudio", "ok"))
	if after-before != 2 {
		t.Errorf("counter delta = %v, want 2", after-before)
	}
}

func TestMetrics_ObserveRequest_EmptyLabels(t *testing.T) {
	before := testutil.ToFloat64(testMetrics.requests.WithLabelValues("unknown", "none", "client_error"))

	testMetrics.ObserveRequest("", "", "client_error", time.Millisecond)

	after := testutil.ToFloat64(testMetrics.requests.WithLabelValues("unknown", "none", "client_error"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestMetrics_UpdateSpend(t *testing.T) {
	testMetrics.UpdateSpend([]budget.ProviderSpend{
		{Provider: "openrouter", DailyUSD: 1.5, MonthlyUSD: 20},
	})

	if got := testutil.ToFloat64(testMetrics.spend.WithLabelValues("openrouter", "day")); got != 1.5 {
		t.Errorf("day gauge = %v, want 1.5", got)
	}
	if got := testutil.ToFloat64(testMetrics.spend.WithLabelValues("openrouter", "month")); got != 20 {
		t.Errorf("month gauge = %v, want 20", got)
	}
}
