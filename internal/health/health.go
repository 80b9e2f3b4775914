package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jensholdgaard/auction-house-bot/internal/auction"
	"github.com/jensholdgaard/auction-house-bot/internal/clock"
	"github.com/jensholdgaard/auction-house-bot/internal/event"
	"github.com/jensholdgaard/auction-house-bot/internal/store"
)

// checkTimeout bounds a readiness probe. Checks run concurrently.
const checkTimeout = 5 * time.Second

// Status represents a health check result.
type Status struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Checker defines a named health check function.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves liveness and readiness probes. The bot is ready only while
// it holds the Discord session and every checker passes.
type Handler struct {
	ready    atomic.Bool
	checkers []Checker
	clock    clock.Clock
}

// NewHandler creates a new health handler with the given checkers.
func NewHandler(clk clock.Clock, checkers ...Checker) *Handler {
	return &Handler{checkers: checkers, clock: clk}
}

// SetReady marks the service as ready to receive traffic.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// LivenessHandler returns HTTP 200 if the process is alive.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.status("ok", nil))
	}
}

// ReadinessHandler returns HTTP 200 if the service is ready.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, h.status("not_ready", nil))
			return
		}

		checks, ok := h.runChecks(r.Context())
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, h.status("not_ready", checks))
			return
		}
		writeJSON(w, http.StatusOK, h.status("ready", checks))
	}
}

// runChecks runs every checker in parallel and reports each result.
func (h *Handler) runChecks(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	results := make([]error, len(h.checkers))
	var wg sync.WaitGroup
	for i, c := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}()
	}
	wg.Wait()

	checks := make(map[string]string, len(h.checkers))
	ok := true
	for i, c := range h.checkers {
		if results[i] != nil {
			checks[c.Name] = results[i].Error()
			ok = false
			continue
		}
		checks[c.Name] = "ok"
	}
	return checks, ok
}

func (h *Handler) status(s string, checks map[string]string) Status {
	return Status{
		Status:    s,
		Checks:    checks,
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
	}
}

// AuctionHandler serves the live auction state.
func AuctionHandler(state func() auction.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, state())
	}
}

// ResultsHandler serves the results of the last completed run, or 404 when
// no run has completed yet.
func ResultsHandler(results store.ResultsStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := results.Latest(r.Context())
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no completed auction"})
		case err != nil:
			logger.ErrorContext(r.Context(), "loading results failed", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "loading results failed"})
		default:
			writeJSON(w, http.StatusOK, res)
		}
	}
}

// RunsHandler lists the start event of every recorded run.
func RunsHandler(events event.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started, err := events.LoadByType(r.Context(), event.AuctionStarted)
		if err != nil {
			logger.ErrorContext(r.Context(), "loading runs failed", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "loading runs failed"})
			return
		}
		if started == nil {
			started = []event.Event{}
		}
		writeJSON(w, http.StatusOK, started)
	}
}

// RunEventsHandler serves the event log of the run named by the id path value.
func RunEventsHandler(events event.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := r.PathValue("id")
		runLog, err := events.Load(r.Context(), runID)
		switch {
		case err != nil:
			logger.ErrorContext(r.Context(), "loading run events failed",
				slog.String("run_id", runID),
				slog.Any("error", err),
			)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "loading run events failed"})
		case len(runLog) == 0:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown run"})
		default:
			writeJSON(w, http.StatusOK, runLog)
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
