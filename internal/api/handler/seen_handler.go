package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/plexwatch/announcer/internal/store"
)

// SeenHandler exposes the operator reset of the seen set. Resetting means
// every item currently in the library is announced again on the next cycle;
// this is deliberate and never happens without this explicit call.
type SeenHandler struct {
	seen   store.SeenStore
	logger *zap.Logger
}

func NewSeenHandler(seen store.SeenStore, logger *zap.Logger) *SeenHandler {
	return &SeenHandler{seen: seen, logger: logger}
}

// Reset handles DELETE /api/v1/seen
func (h *SeenHandler) Reset(w http.ResponseWriter, r *http.Request) {
	removed, err := h.seen.Reset(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	h.logger.Warn("seen set reset by operator", zap.Int64("removed", removed))
	respondJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
