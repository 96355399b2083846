package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Dosada05/campus-games/events"
	"github.com/Dosada05/campus-games/services"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	responder
	hub      *events.Hub
	gateway  *services.Gateway
	upgrader websocket.Upgrader
}

// NewWebSocketHandler принимает список разрешенных Origin; пустой список или "*" разрешает все.
func NewWebSocketHandler(hub *events.Hub, gateway *services.Gateway, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		responder: newResponder(logger),
		hub:       hub,
		gateway:   gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// ServeTeams streams every team event. Клиент подключается к /ws/teams
func (h *WebSocketHandler) ServeTeams(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, events.TeamsRoom)
}

// ServeTeam streams the events of a single team: /ws/teams/{teamID}
func (h *WebSocketHandler) ServeTeam(w http.ResponseWriter, r *http.Request) {
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	h.serve(w, r, events.TeamRoom(strconv.FormatInt(teamID, 10)))
}

func (h *WebSocketHandler) serve(w http.ResponseWriter, r *http.Request, room string) {
	// Браузер не умеет ставить заголовки на websocket, поэтому токен можно передать в query
	tok := token(r)
	if tok == "" {
		tok = r.URL.Query().Get("token")
	}
	if err := h.gateway.AuthorizeSubscribe(r.Context(), tok); err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отправляет HTTP ошибку клиенту
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.String("room", room), slog.Any("error", err))
		return
	}

	client := events.NewClient(h.hub, conn, room)
	if !h.hub.Subscribe(client) {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
