package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/riskgate/pkg/logger"
)

// DriverHandler serves per-driver views.
type DriverHandler struct {
	deps Dependencies
	log  logger.Logger
}

// NewDriverHandler creates a new driver handler.
func NewDriverHandler(deps Dependencies, log logger.Logger) *DriverHandler {
	return &DriverHandler{deps: deps, log: log}
}

// HandleTrend handles GET /v1/drivers/{driver_id}/trend requests. Unknown
// drivers report INSUFFICIENT_DATA.
func (h *DriverHandler) HandleTrend(w http.ResponseWriter, r *http.Request) {
	const op = "api.driver_trend"
	id := strings.TrimSpace(r.PathValue("driver_id"))
	if id == "" {
		writeError(w, WrapKind(op, ErrBadRequest, errors.New("missing driver_id")))
		return
	}
	snap, err := h.deps.Trend(r.Context(), id)
	if err != nil {
		h.log.Warn(r.Context(), "trend lookup failed", logger.String("driver_id", id), logger.Error(err))
		writeError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
