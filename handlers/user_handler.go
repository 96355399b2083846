package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Dosada05/campus-games/models"
	"github.com/Dosada05/campus-games/services"
)

type UserHandler struct {
	responder
	gateway *services.Gateway
}

func NewUserHandler(gateway *services.Gateway, logger *slog.Logger) *UserHandler {
	return &UserHandler{responder: newResponder(logger), gateway: gateway}
}

type changePasswordInput struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.gateway.ListUsers(r.Context(), token(r))
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"users": users}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	user, err := h.gateway.GetUser(r.Context(), token(r), userID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var input models.ProfileFields
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if input.DisplayName == nil && input.MobileNumber == nil && input.Gender == nil && input.Class == nil && input.Year == nil {
		h.badRequestResponse(w, r, errors.New("at least one field must be provided for update"))
		return
	}

	user, err := h.gateway.UpdateProfile(r.Context(), token(r), input)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var input changePasswordInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	if err := h.gateway.ChangePassword(r.Context(), token(r), input.OldPassword, input.NewPassword); err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadPhoto expects multipart/form-data with the image in the "photo" field.
func (h *UserHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	file, closeFn, err := readUpload(w, r, "photo")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	defer closeFn()

	user, err := h.gateway.UploadPhoto(r.Context(), token(r), file)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	if err := h.gateway.DeleteUser(r.Context(), token(r), userID); err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
