package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/campus-games/services"
)

type DonationHandler struct {
	responder
	gateway *services.Gateway
}

func NewDonationHandler(gateway *services.Gateway, logger *slog.Logger) *DonationHandler {
	return &DonationHandler{responder: newResponder(logger), gateway: gateway}
}

// RecordDonation godoc
// @Summary Append a donation to the ledger
// @Tags donations
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body services.DonationInput true "Donation"
// @Success 201 {object} models.Donation
// @Failure 400,401 {object} errorBody
// @Router /donations [post]
func (h *DonationHandler) RecordDonation(w http.ResponseWriter, r *http.Request) {
	var input services.DonationInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	donation, err := h.gateway.RecordDonation(r.Context(), token(r), input)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"donation": donation}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *DonationHandler) ListDonations(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.gateway.ListDonations(r.Context(), token(r))
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, ledger, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
