package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dosada05/campus-games/db"
	"github.com/Dosada05/campus-games/events"
	"github.com/Dosada05/campus-games/handlers"
	"github.com/Dosada05/campus-games/repositories"
	"github.com/Dosada05/campus-games/services"
)

const testPassword = "password123"

type apiServer struct {
	t   *testing.T
	srv *httptest.Server
	hub *events.Hub
	gw  *services.Gateway
}

func newAPIServer(t *testing.T) *apiServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	conn, err := db.Connect(db.DriverSQLite, filepath.Join(t.TempDir(), "api.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(ctx, conn, db.DriverSQLite))

	dialect := repositories.SQLite
	userRepo := repositories.NewUserRepository(dialect)
	gameRepo := repositories.NewGameRepository(dialect)
	teamRepo := repositories.NewTeamRepository(dialect)
	membershipRepo := repositories.NewMembershipRepository(dialect)
	sessionRepo := repositories.NewSessionRepository(dialect)

	hasher, err := services.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	identity := services.NewIdentityService(userRepo, membershipRepo, sessionRepo, hasher)

	hub := events.NewHub(nil)
	go hub.Run(ctx)

	gw := services.NewGateway(services.GatewayDeps{
		Tx:        repositories.NewTransactor(conn, dialect),
		Identity:  identity,
		Catalog:   services.NewCatalogService(gameRepo, teamRepo, membershipRepo, services.DeletePolicyDeny),
		Teams:     services.NewTeamService(teamRepo, membershipRepo, gameRepo, userRepo, true),
		Sessions:  services.NewSessionService(sessionRepo, identity, []byte("routes-test-secret"), time.Hour),
		Donations: services.NewDonationService(repositories.NewDonationRepository(dialect)),
		Dashboard: services.NewDashboardService(userRepo, gameRepo, teamRepo, repositories.NewCounterRepository(dialect)),
		Events:    hub,
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	SetupRoutes(router, Handlers{
		Auth:      handlers.NewAuthHandler(gw, false, logger),
		Users:     handlers.NewUserHandler(gw, logger),
		Games:     handlers.NewGameHandler(gw, logger),
		Teams:     handlers.NewTeamHandler(gw, logger),
		Donations: handlers.NewDonationHandler(gw, logger),
		Dashboard: handlers.NewDashboardHandler(gw, logger),
		WebSocket: handlers.NewWebSocketHandler(hub, gw, nil, logger),
		Fallback:  handlers.NewFallbackHandler(logger),
	}, []string{"*"})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &apiServer{t: t, srv: srv, hub: hub, gw: gw}
}

// do sends a JSON request and decodes the JSON response (if any) into a generic map.
func (s *apiServer) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(s.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp.StatusCode, decoded
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func (s *apiServer) register(username, email string) (int, map[string]interface{}) {
	return s.do(http.MethodPost, "/auth/register", "", map[string]interface{}{
		"display_name": username,
		"username":     username,
		"email":        email,
		"password":     testPassword,
	})
}

func (s *apiServer) login(username string) string {
	s.t.Helper()
	status, body := s.do(http.MethodPost, "/auth/login", "", map[string]interface{}{
		"username": username,
		"password": testPassword,
	})
	require.Equal(s.t, http.StatusOK, status, body)
	token, _ := body["token"].(string)
	require.NotEmpty(s.t, token)
	return token
}

func (s *apiServer) user(username string) (int64, string) {
	s.t.Helper()
	status, body := s.register(username, username+"@example.com")
	require.Equal(s.t, http.StatusCreated, status, body)
	return int64(body["user"].(map[string]interface{})["id"].(float64)), s.login(username)
}

func (s *apiServer) admin() string {
	s.t.Helper()
	_, _, err := s.gw.EnsureAdmin(context.Background(), services.RegisterInput{
		DisplayName: "Administrator",
		Username:    "admin",
		Email:       "admin@example.com",
		Password:    testPassword,
	})
	require.NoError(s.t, err)
	return s.login("admin")
}

func idOf(body map[string]interface{}, key string) int64 {
	return int64(body[key].(map[string]interface{})["id"].(float64))
}

func TestRegistrationConflicts(t *testing.T) {
	s := newAPIServer(t)

	status, _ := s.register("alice", "alice@x.com")
	require.Equal(t, http.StatusCreated, status)

	status, body := s.register("alice", "other@x.com")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_username", errorCode(body))

	status, body = s.register("bob", "alice@x.com")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_email", errorCode(body))

	status, body = s.do(http.MethodPost, "/auth/register", "", map[string]interface{}{"username": "x", "role": "admin"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", errorCode(body), "unknown fields such as role are rejected")
}

func TestSessionLifecycle(t *testing.T) {
	s := newAPIServer(t)
	_, token := s.user("alice")

	status, body := s.do(http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", body["user"].(map[string]interface{})["username"])

	status, _ = s.do(http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = s.do(http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthenticated", errorCode(body))

	status, body = s.do(http.MethodPost, "/auth/login", "", map[string]interface{}{"username": "alice", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", errorCode(body))
}

func TestTeamScenario(t *testing.T) {
	s := newAPIServer(t)
	adminToken := s.admin()
	_, aliceToken := s.user("alice")
	_, bobToken := s.user("bob")

	status, body := s.do(http.MethodPost, "/games", adminToken, map[string]interface{}{"name": "Chess", "team_size": 3})
	require.Equal(t, http.StatusCreated, status, body)
	gameID := idOf(body, "game")

	status, body = s.do(http.MethodPost, "/teams", aliceToken, map[string]interface{}{"game_id": gameID, "name": "Rooks"})
	require.Equal(t, http.StatusCreated, status, body)
	teamID := idOf(body, "team")
	teamPath := fmt.Sprintf("/teams/%d", teamID)

	status, _ = s.do(http.MethodPost, teamPath+"/join", bobToken, nil)
	require.Equal(t, http.StatusCreated, status)

	status, body = s.do(http.MethodPost, teamPath+"/join", bobToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_member", errorCode(body))

	status, _ = s.do(http.MethodPost, teamPath+"/leave", aliceToken, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = s.do(http.MethodPost, teamPath+"/leave", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_member", errorCode(body))

	status, body = s.do(http.MethodGet, teamPath, bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["team"].(map[string]interface{})["member_ids"], 1)

	// Standard users cannot use admin endpoints.
	status, body = s.do(http.MethodDelete, fmt.Sprintf("/games/%d", gameID), bobToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "permission_denied", errorCode(body))

	status, body = s.do(http.MethodPatch, teamPath, bobToken, map[string]interface{}{"name": "Knights"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "permission_denied", errorCode(body))

	// Default policy refuses to delete a game that teams still reference.
	status, body = s.do(http.MethodDelete, fmt.Sprintf("/games/%d", gameID), adminToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "game_in_use", errorCode(body))

	status, _ = s.do(http.MethodDelete, teamPath, adminToken, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = s.do(http.MethodGet, teamPath, bobToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "team_not_found", errorCode(body))

	status, body = s.do(http.MethodDelete, fmt.Sprintf("/games/%d", gameID), adminToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Empty(t, body["deleted_team_ids"])
}

func TestAnonymousAccess(t *testing.T) {
	s := newAPIServer(t)

	status, body := s.do(http.MethodGet, "/games", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "games")

	for _, path := range []string{"/teams", "/dashboard", "/users", "/donations"} {
		status, body = s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.Equal(t, "unauthenticated", errorCode(body), path)
	}

	status, body = s.do(http.MethodGet, "/no-such-route", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorCode(body))

	status, body = s.do(http.MethodGet, "/teams/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", errorCode(body))
}

func TestSelfDeletionThroughAPI(t *testing.T) {
	s := newAPIServer(t)
	adminToken := s.admin()

	status, body := s.do(http.MethodGet, "/auth/me", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	adminID := idOf(body, "user")

	status, body = s.do(http.MethodDelete, fmt.Sprintf("/users/%d", adminID), adminToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "self_deletion", errorCode(body))
}

func TestTeamEventsOverWebSocket(t *testing.T) {
	s := newAPIServer(t)
	adminToken := s.admin()
	_, aliceToken := s.user("alice")

	status, body := s.do(http.MethodPost, "/games", adminToken, map[string]interface{}{"name": "Go", "team_size": 2})
	require.Equal(t, http.StatusCreated, status, body)
	gameID := idOf(body, "game")

	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws/teams?token=" + aliceToken
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.RoomSize(events.TeamsRoom) == 1 }, time.Second, 10*time.Millisecond)

	status, body = s.do(http.MethodPost, "/teams", aliceToken, map[string]interface{}{"game_id": gameID, "name": "Stones"})
	require.Equal(t, http.StatusCreated, status, body)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg events.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, events.TeamCreated, msg.Type)
	assert.Equal(t, events.TeamsRoom, msg.RoomID)
}

func TestWebSocketRequiresSession(t *testing.T) {
	s := newAPIServer(t)

	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws/teams"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
