package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/execbox/internal/sandbox"
)

// TierService is the slice of RunService the tier handlers need.
type TierService interface {
	Tiers() []sandbox.Tier
	TierStatus(ctx context.Context) map[sandbox.Tier]sandbox.Status
	RefreshTiers(ctx context.Context)
}

// TierHandler exposes the availability of the isolation tiers.
type TierHandler struct {
	tiers  TierService
	logger *slog.Logger
}

func NewTierHandler(tiers TierService, logger *slog.Logger) *TierHandler {
	return &TierHandler{tiers: tiers, logger: logger}
}

// tierStatusResponse is one row of the tier listing, in chain order.
type tierStatusResponse struct {
	Tier      string `json:"tier"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
	Detail    string `json:"detail"`
}

// tierStatusList assembles the listing in chain order. Shared with the HTML
// status page.
func tierStatusList(ctx context.Context, tiers TierService) []tierStatusResponse {
	statuses := tiers.TierStatus(ctx)

	out := make([]tierStatusResponse, 0, len(statuses))
	for _, tier := range tiers.Tiers() {
		st := statuses[tier]
		out = append(out, tierStatusResponse{
			Tier:      string(tier),
			Label:     tier.Label(),
			Available: st.Available,
			Detail:    st.Detail,
		})
	}
	return out
}

// HandleList reports each tier's availability in fallback order.
//
// HTTP: GET /api/tiers
func (h *TierHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tierStatusList(r.Context(), h.tiers))
}

// HandleRefresh re-probes availability immediately, bypassing the cache, and
// returns the fresh listing. Lets an operator pick up a just-started Docker
// daemon without waiting out the TTL.
//
// HTTP: POST /api/tiers/refresh
func (h *TierHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("manual tier availability refresh requested")
	h.tiers.RefreshTiers(r.Context())
	writeJSON(w, http.StatusOK, tierStatusList(r.Context(), h.tiers))
}
