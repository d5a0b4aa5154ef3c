package handler

import (
	"net/http"

	"github.com/plexwatch/announcer/internal/pipeline"
	"github.com/plexwatch/announcer/internal/store"
)

// CycleSource exposes the scheduler's last cycle and the manual trigger.
type CycleSource interface {
	Last() (*pipeline.Report, error)
	TriggerNow()
}

// StatusHandler serves the ops view of the pipeline: the most recent cycle
// report plus the current seen-set size, and the manual run trigger.
type StatusHandler struct {
	cycles CycleSource
	seen   store.SeenStore
}

func NewStatusHandler(cycles CycleSource, seen store.SeenStore) *StatusHandler {
	return &StatusHandler{cycles: cycles, seen: seen}
}

// Status handles GET /api/v1/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	report, lastErr := h.cycles.Last()

	count, err := h.seen.Count(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	body := map[string]any{
		"seen_items": count,
		"last_cycle": report, // null until the first cycle completes
	}
	if lastErr != nil {
		body["last_cycle_error"] = lastErr.Error()
	}
	respondJSON(w, http.StatusOK, body)
}

// Run handles POST /api/v1/run — request an immediate cycle. The request is
// coalesced with any tick already due; 202 means "scheduled", not "done".
func (h *StatusHandler) Run(w http.ResponseWriter, r *http.Request) {
	h.cycles.TriggerNow()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "cycle scheduled"})
}
