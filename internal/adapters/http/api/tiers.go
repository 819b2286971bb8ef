package api

import "net/http"

type tierResponse struct {
	Name          string  `json:"name"`
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	AdjustmentPct float64 `json:"adjustment_pct"`
}

// TierHandler serves the active tier table.
type TierHandler struct {
	deps Dependencies
}

// NewTierHandler creates a new tier handler.
func NewTierHandler(deps Dependencies) *TierHandler {
	return &TierHandler{deps: deps}
}

// HandleTiers handles GET /v1/config/tiers requests.
func (h *TierHandler) HandleTiers(w http.ResponseWriter, _ *http.Request) {
	tiers := h.deps.Tiers()
	out := make([]tierResponse, len(tiers))
	for i, t := range tiers {
		out[i] = tierResponse{Name: t.Name, Lower: t.Lower, Upper: t.Upper, AdjustmentPct: t.AdjustmentPct}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": out})
}
