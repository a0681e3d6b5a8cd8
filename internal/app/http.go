package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxgate/internal/observe"
)

const maxJournalLimit = 500

// Handler returns the side server's routes wrapped in the observability
// middleware:
//
//	GET /healthz   liveness
//	GET /readyz    readiness (capture running, provider circuits)
//	GET /metrics   Prometheus scrape endpoint
//	GET /events    WebSocket feed of speech, transcript and answer events
//	GET /journal   recent journal entries as JSON, ?limit=N
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /events", a.hub)
	mux.HandleFunc("GET /journal", a.handleJournal)
	return observe.Middleware(a.metrics)(mux)
}

type journalEntry struct {
	Session    string    `json:"session"`
	Utterance  uint64    `json:"utterance"`
	Kind       string    `json:"kind"`
	Text       string    `json:"text"`
	Language   string    `json:"language,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

func (a *App) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxJournalLimit)
	}

	entries, err := a.journal.Recent(r.Context(), limit)
	if err != nil {
		observe.Logger(r.Context()).Error("journal recent", "err", err)
		http.Error(w, "journal unavailable", http.StatusServiceUnavailable)
		return
	}

	out := make([]journalEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalEntry{
			Session:    e.Session,
			Utterance:  e.Utterance,
			Kind:       string(e.Kind),
			Text:       e.Text,
			Language:   e.Language,
			DurationMs: e.Duration.Milliseconds(),
			At:         e.At,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		slog.Debug("journal: write response", "err", err)
	}
}
