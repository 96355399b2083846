package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/campus-games/services"
)

type DashboardHandler struct {
	responder
	gateway *services.Gateway
}

func NewDashboardHandler(gateway *services.Gateway, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{responder: newResponder(logger), gateway: gateway}
}

// GetStats godoc
// @Summary Platform totals; every call counts as one visit
// @Tags dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.DashboardStats
// @Failure 401 {object} errorBody
// @Router /dashboard [get]
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gateway.Dashboard(r.Context(), token(r))
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, stats, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
