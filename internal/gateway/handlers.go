package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/memory"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/provider"
	"github.com/navyguy3117/ArdenV10-Dashboard/internal/router"
)

// maxRequestBody caps inbound request bodies at 10 MiB.
const maxRequestBody = 10 << 20

// handleCompletions serves POST /v1/chat/completions.
func (g *Gateway) handleCompletions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()

		var wire router.ChatRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err := dec.Decode(&wire); err != nil {
			g.writeError(w, router.ErrClient, "", started)
			return
		}

		req, err := wire.ToRequest()
		if err != nil {
			g.writeError(w, err, "", started)
			return
		}

		ctx := r.Context()
		if g.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.cfg.RequestTimeout)
			defer cancel()
		}

		completion, err := g.pipeline.Handle(ctx, req)
		if err != nil {
			intent := ""
			if req.Metadata != nil {
				intent = req.Metadata.Intent
			}
			g.writeError(w, err, intent, started)
			return
		}

		if g.metrics != nil {
			g.metrics.ObserveRequest(string(completion.Routing.Intent), completion.Routing.Provider, "ok", time.Since(started))
			g.metrics.UpdateSpend(g.ledger.Snapshot())
		}
		writeJSON(w, http.StatusOK, completion)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, err error, intent string, started time.Time) {
	envelope, status := router.NewErrorEnvelope(err)
	if g.metrics != nil {
		g.metrics.ObserveRequest(intent, "", string(envelope.Error.Type), time.Since(started))
	}
	writeJSON(w, status, envelope)
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"` // "ok" or "degraded"
	Providers []provider.Status      `json:"providers"`
	Budget    []budget.ProviderSpend `json:"budget"`
	LastCall  *memory.RoutingCall    `json:"last_call,omitempty"`
}

// handleHealth serves GET /health. Each provider that supports it is
// actively probed; returns 200 when every provider is available, 503 when
// any is cooling down, dead, or failing its probe.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:    "ok",
			Providers: g.caller.Probe(r.Context()),
			Budget:    g.ledger.Snapshot(),
		}
		for _, p := range resp.Providers {
			if !p.Available {
				resp.Status = "degraded"
				break
			}
		}
		if g.calls != nil {
			if call, ok, err := g.calls.Last(r.Context()); err == nil && ok {
				resp.LastCall = &call
			}
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Providers     []provider.Status      `json:"providers"`
	Budget        []budget.ProviderSpend `json:"budget"`
}

// handleStatus serves GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{
			UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
			Providers:     g.caller.HealthReport(),
			Budget:        g.ledger.Snapshot(),
		})
	}
}

// handleLogs serves GET /ui/logs?type=requests|errors|context&limit=N.
func (g *Gateway) handleLogs() http.HandlerFunc {
	streams := map[string]string{
		"requests": router.StreamRequests,
		"errors":   router.StreamErrors,
		"context":  router.StreamContext,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if g.journal == nil {
			http.Error(w, "journals disabled", http.StatusNotFound)
			return
		}

		stream, ok := streams[r.URL.Query().Get("type")]
		if !ok {
			http.Error(w, "unknown log type", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		lines, err := g.journal.Tail(stream, limit)
		if err != nil {
			g.logger.Error("journal tail failed", "stream", stream, "error", err)
			http.Error(w, "journal read failed", http.StatusInternalServerError)
			return
		}
		if lines == nil {
			lines = []json.RawMessage{}
		}
		writeJSON(w, http.StatusOK, lines)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
