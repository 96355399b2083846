package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dosada05/campus-games/db"
	"github.com/Dosada05/campus-games/models"
	"github.com/Dosada05/campus-games/repositories"
	"github.com/Dosada05/campus-games/storage"
)

const testPassword = "password123"

type harnessOptions struct {
	enforceCapacity bool
	deletePolicy    GameDeletePolicy
	uploads         bool
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	conn     *sql.DB
	gw       *Gateway
	sessions *sessionService
	events   *recordingPublisher
	uploader *memoryUploader
}

func withCapacity(enforce bool) func(*harnessOptions) {
	return func(o *harnessOptions) { o.enforceCapacity = enforce }
}

func withDeletePolicy(p GameDeletePolicy) func(*harnessOptions) {
	return func(o *harnessOptions) { o.deletePolicy = p }
}

func withUploads() func(*harnessOptions) {
	return func(o *harnessOptions) { o.uploads = true }
}

func newHarness(t *testing.T, opts ...func(*harnessOptions)) *harness {
	t.Helper()
	options := harnessOptions{enforceCapacity: true, deletePolicy: DeletePolicyDeny}
	for _, opt := range opts {
		opt(&options)
	}

	ctx := context.Background()
	conn, err := db.Connect(db.DriverSQLite, filepath.Join(t.TempDir(), "services.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(ctx, conn, db.DriverSQLite))

	dialect := repositories.SQLite
	userRepo := repositories.NewUserRepository(dialect)
	gameRepo := repositories.NewGameRepository(dialect)
	teamRepo := repositories.NewTeamRepository(dialect)
	membershipRepo := repositories.NewMembershipRepository(dialect)
	sessionRepo := repositories.NewSessionRepository(dialect)

	hasher, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	identity := NewIdentityService(userRepo, membershipRepo, sessionRepo, hasher)
	sessions := NewSessionService(sessionRepo, identity, []byte("test-secret"), time.Hour)

	publisher := &recordingPublisher{}
	deps := GatewayDeps{
		Tx:        repositories.NewTransactor(conn, dialect),
		Identity:  identity,
		Catalog:   NewCatalogService(gameRepo, teamRepo, membershipRepo, options.deletePolicy),
		Teams:     NewTeamService(teamRepo, membershipRepo, gameRepo, userRepo, options.enforceCapacity),
		Sessions:  sessions,
		Donations: NewDonationService(repositories.NewDonationRepository(dialect)),
		Dashboard: NewDashboardService(userRepo, gameRepo, teamRepo, repositories.NewCounterRepository(dialect)),
		Events:    publisher,
	}

	h := &harness{t: t, ctx: ctx, conn: conn, sessions: sessions.(*sessionService), events: publisher}
	if options.uploads {
		h.uploader = newMemoryUploader()
		deps.Uploader = h.uploader
	}
	h.gw = NewGateway(deps)
	return h
}

func (h *harness) register(username string) *models.User {
	h.t.Helper()
	user, err := h.gw.Register(h.ctx, RegisterInput{
		DisplayName: username,
		Username:    username,
		Email:       username + "@example.com",
		Password:    testPassword,
	})
	require.NoError(h.t, err)
	return user
}

func (h *harness) login(username string) string {
	h.t.Helper()
	session, err := h.gw.Login(h.ctx, models.Credentials{Username: username, Password: testPassword})
	require.NoError(h.t, err)
	return session.Token
}

// user registers and logs in a standard user.
func (h *harness) user(username string) (*models.User, string) {
	h.t.Helper()
	user := h.register(username)
	return user, h.login(username)
}

func (h *harness) admin() (*models.User, string) {
	h.t.Helper()
	user, _, err := h.gw.EnsureAdmin(h.ctx, RegisterInput{
		DisplayName: "Administrator",
		Username:    "admin",
		Email:       "admin@example.com",
		Password:    testPassword,
	})
	require.NoError(h.t, err)
	return user, h.login("admin")
}

func (h *harness) game(adminToken, name string, size int) *models.Game {
	h.t.Helper()
	game, err := h.gw.CreateGame(h.ctx, adminToken, GameInput{Name: name, TeamSize: size})
	require.NoError(h.t, err)
	return game
}

func (h *harness) members(teamID int64) []int64 {
	h.t.Helper()
	ids, err := repositories.NewMembershipRepository(repositories.SQLite).ListUserIDsByTeam(h.ctx, h.conn, teamID)
	require.NoError(h.t, err)
	return ids
}

func (h *harness) count(table string) int {
	h.t.Helper()
	var n int
	require.NoError(h.t, h.conn.QueryRowContext(h.ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

type publishedEvent struct {
	Room    string
	Type    string
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(room, eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Room: room, Type: eventType, Payload: payload})
}

func (p *recordingPublisher) types(room string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.Room == room {
			out = append(out, e.Type)
		}
	}
	return out
}

type memoryUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func newMemoryUploader() *memoryUploader {
	return &memoryUploader{objects: map[string][]byte{}}
}

func (u *memoryUploader) Upload(_ context.Context, key, _ string, reader io.Reader) (*storage.UploadResult, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failOn != "" {
		return nil, errors.New(u.failOn)
	}
	u.objects[key] = buf.Bytes()
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *memoryUploader) Delete(_ context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	return nil
}

func (u *memoryUploader) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (u *memoryUploader) keys() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	keys := make([]string, 0, len(u.objects))
	for k := range u.objects {
		keys = append(keys, k)
	}
	return keys
}
