package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/campus-games/services"
)

type GameHandler struct {
	responder
	gateway *services.Gateway
}

func NewGameHandler(gateway *services.Gateway, logger *slog.Logger) *GameHandler {
	return &GameHandler{responder: newResponder(logger), gateway: gateway}
}

// ListGames godoc
// @Summary Game catalog
// @Tags games
// @Produce json
// @Success 200 {array} models.Game
// @Router /games [get]
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.gateway.ListGames(r.Context(), token(r))
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"games": games}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// GetGame godoc
// @Summary Game by ID
// @Tags games
// @Produce json
// @Param gameID path int true "Game ID"
// @Success 200 {object} models.Game
// @Failure 404 {object} errorBody
// @Router /games/{gameID} [get]
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	game, err := h.gateway.GetGame(r.Context(), token(r), gameID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"game": game}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// CreateGame godoc
// @Summary Create a game (admin)
// @Tags games
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body services.GameInput true "Game"
// @Success 201 {object} models.Game
// @Failure 400,403,409 {object} errorBody
// @Router /games [post]
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var input services.GameInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	game, err := h.gateway.CreateGame(r.Context(), token(r), input)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"game": game}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *GameHandler) UpdateGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	var input services.GameInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	game, err := h.gateway.UpdateGame(r.Context(), token(r), gameID, input)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"game": game}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// DeleteGame godoc
// @Summary Delete a game (admin); referencing teams follow the configured policy
// @Tags games
// @Security BearerAuth
// @Param gameID path int true "Game ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403,404,409 {object} errorBody
// @Router /games/{gameID} [delete]
func (h *GameHandler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	deletion, err := h.gateway.DeleteGame(r.Context(), token(r), gameID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{
		"deleted_team_ids":  nonNilIDs(deletion.DeletedTeamIDs),
		"detached_team_ids": nonNilIDs(deletion.DetachedTeamIDs),
	}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// UploadImage expects multipart/form-data with the image in the "image" field.
func (h *GameHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	file, closeFn, err := readUpload(w, r, "image")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	defer closeFn()

	game, err := h.gateway.UploadGameImage(r.Context(), token(r), gameID, file)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"game": game}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
