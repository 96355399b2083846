package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Dosada05/campus-games/services"
)

type TeamHandler struct {
	responder
	gateway *services.Gateway
}

func NewTeamHandler(gateway *services.Gateway, logger *slog.Logger) *TeamHandler {
	return &TeamHandler{responder: newResponder(logger), gateway: gateway}
}

type createTeamInput struct {
	GameID int64  `json:"game_id"`
	Name   string `json:"name"`
}

type renameTeamInput struct {
	Name string `json:"name"`
}

type reassignInput struct {
	UserID     int64 `json:"user_id"`
	FromTeamID int64 `json:"from_team_id"`
	ToTeamID   int64 `json:"to_team_id"`
}

// ListTeams godoc
// @Summary List teams, optionally filtered by game
// @Tags teams
// @Security BearerAuth
// @Produce json
// @Param game_id query int false "Game ID"
// @Success 200 {array} models.Team
// @Failure 400,401 {object} errorBody
// @Router /teams [get]
func (h *TeamHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	var gameID *int64
	if raw := r.URL.Query().Get("game_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.badRequestResponse(w, r, fmt.Errorf("invalid game_id query parameter: %q", raw))
			return
		}
		gameID = &id
	}

	teams, err := h.gateway.ListTeams(r.Context(), token(r), gameID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"teams": teams}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	team, err := h.gateway.GetTeam(r.Context(), token(r), teamID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"team": team}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// CreateTeam godoc
// @Summary Create a team for a game; the creator becomes its first member
// @Tags teams
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body createTeamInput true "Team"
// @Success 201 {object} models.Team
// @Failure 400,401,404,409 {object} errorBody
// @Router /teams [post]
func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var input createTeamInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if input.GameID <= 0 {
		h.badRequestResponse(w, r, fmt.Errorf("game_id is required"))
		return
	}

	team, err := h.gateway.CreateTeam(r.Context(), token(r), input.GameID, input.Name)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"team": team}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// JoinTeam godoc
// @Summary Join a team as the current user
// @Tags teams
// @Security BearerAuth
// @Param teamID path int true "Team ID"
// @Success 201 {object} models.Membership
// @Failure 401,404,409 {object} errorBody
// @Router /teams/{teamID}/join [post]
func (h *TeamHandler) JoinTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	membership, err := h.gateway.JoinTeam(r.Context(), token(r), teamID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"membership": membership}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *TeamHandler) LeaveTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	if err := h.gateway.LeaveTeam(r.Context(), token(r), teamID); err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TeamHandler) RenameTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	var input renameTeamInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	team, err := h.gateway.RenameTeam(r.Context(), token(r), teamID, input.Name)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"team": team}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *TeamHandler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	if err := h.gateway.DeleteTeam(r.Context(), token(r), teamID); err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	if err := h.gateway.RemoveMember(r.Context(), token(r), teamID, userID); err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReassignMembership godoc
// @Summary Move a user from one team to another in a single transaction (admin)
// @Tags teams
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param input body reassignInput true "Reassignment"
// @Success 200 {object} models.Membership
// @Failure 400,403,404,409 {object} errorBody
// @Router /memberships/reassign [post]
func (h *TeamHandler) ReassignMembership(w http.ResponseWriter, r *http.Request) {
	var input reassignInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	membership, err := h.gateway.ReassignMembership(r.Context(), token(r), input.UserID, input.FromTeamID, input.ToTeamID)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"membership": membership}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
