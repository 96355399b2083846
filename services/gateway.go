package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/Dosada05/campus-games/events"
	"github.com/Dosada05/campus-games/models"
	"github.com/Dosada05/campus-games/repositories"
	"github.com/Dosada05/campus-games/storage"
)

// EventPublisher receives team changes after they are committed.
type EventPublisher interface {
	Publish(room, eventType string, payload interface{})
}

// FileInput is an image upload coming from the presentation layer.
type FileInput struct {
	ContentType string
	Size        int64
	Body        io.Reader
}

type MembershipEvent struct {
	TeamID int64  `json:"team_id"`
	UserID int64  `json:"user_id"`
	Action string `json:"action"`
}

type TeamRefEvent struct {
	TeamID int64 `json:"team_id"`
}

type GatewayDeps struct {
	Tx        repositories.Transactor
	Identity  IdentityService
	Catalog   CatalogService
	Teams     TeamService
	Sessions  SessionService
	Donations DonationService
	Dashboard DashboardService
	Uploader  storage.FileUploader // nil отключает загрузку файлов
	Events    EventPublisher
	Logger    *slog.Logger
}

// Gateway is the only entry point for operations that need a principal. Each method
// resolves the caller from the session token, checks the policy and runs the change
// in one transaction. Expected failures come back as *Error; anything else is logged
// and replaced by ErrInternal.
type Gateway struct {
	tx        repositories.Transactor
	policy    Policy
	identity  IdentityService
	catalog   CatalogService
	teams     TeamService
	sessions  SessionService
	donations DonationService
	dashboard DashboardService
	uploader  storage.FileUploader
	events    EventPublisher
	logger    *slog.Logger
}

func NewGateway(deps GatewayDeps) *Gateway {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		tx:        deps.Tx,
		identity:  deps.Identity,
		catalog:   deps.Catalog,
		teams:     deps.Teams,
		sessions:  deps.Sessions,
		donations: deps.Donations,
		dashboard: deps.Dashboard,
		uploader:  deps.Uploader,
		events:    deps.Events,
		logger:    logger,
	}
}

// --- core ---

func (g *Gateway) authorize(ctx context.Context, token string, op Operation) (models.Principal, error) {
	principal, err := g.sessions.Resolve(ctx, g.tx.Executor(), token)
	if err != nil {
		return models.Anonymous, g.fail(op, err)
	}
	if err := g.policy.Authorize(principal, op); err != nil {
		g.logger.Debug("operation denied", "operation", op, "user_id", principal.UserID, "reason", err)
		return principal, err
	}
	return principal, nil
}

func (g *Gateway) inTx(ctx context.Context, op Operation, fn func(exec repositories.SQLExecutor) error) error {
	return g.fail(op, g.tx.WithinTx(ctx, fn))
}

func (g *Gateway) fail(op Operation, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	g.logger.Error("operation failed", "operation", op, "error", err)
	return ErrInternal
}

func (g *Gateway) publish(teamID int64, eventType string, payload interface{}) {
	if g.events == nil {
		return
	}
	g.events.Publish(events.TeamsRoom, eventType, payload)
	g.events.Publish(events.TeamRoom(strconv.FormatInt(teamID, 10)), eventType, payload)
}

func (g *Gateway) publishMembership(teamID, userID int64, action string) {
	g.publish(teamID, events.MembershipChanged, MembershipEvent{TeamID: teamID, UserID: userID, Action: action})
}

func (g *Gateway) publicURL(key *string) *string {
	if g.uploader == nil || key == nil {
		return nil
	}
	u := g.uploader.GetPublicURL(*key)
	if u == "" {
		return nil
	}
	return &u
}

func (g *Gateway) withUserURL(user *models.User) *models.User {
	if user != nil {
		user.PhotoURL = g.publicURL(user.PhotoKey)
	}
	return user
}

func (g *Gateway) withGameURL(game *models.Game) *models.Game {
	if game != nil {
		game.ImageURL = g.publicURL(game.ImageKey)
	}
	return game
}

func (g *Gateway) withTeamURLs(team *models.Team) *models.Team {
	if team == nil {
		return nil
	}
	g.withGameURL(team.Game)
	for i := range team.Members {
		g.withUserURL(&team.Members[i])
	}
	return team
}

// --- identity ---

// Register always creates a standard user; admins come only from the bootstrap.
func (g *Gateway) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	if _, err := g.authorize(ctx, "", OpRegister); err != nil {
		return nil, err
	}
	input.Role = models.RoleStandard

	var user *models.User
	err := g.inTx(ctx, OpRegister, func(exec repositories.SQLExecutor) (err error) {
		user, err = g.identity.Register(ctx, exec, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return g.withUserURL(user), nil
}

func (g *Gateway) Login(ctx context.Context, credentials models.Credentials) (*models.SessionToken, error) {
	if _, err := g.authorize(ctx, "", OpLogin); err != nil {
		return nil, err
	}

	var session *models.SessionToken
	err := g.inTx(ctx, OpLogin, func(exec repositories.SQLExecutor) (err error) {
		session, err = g.sessions.Login(ctx, exec, credentials.Username, credentials.Password)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.withUserURL(session.User)
	return session, nil
}

func (g *Gateway) Logout(ctx context.Context, token string) error {
	if _, err := g.authorize(ctx, token, OpLogout); err != nil {
		return err
	}
	return g.inTx(ctx, OpLogout, func(exec repositories.SQLExecutor) error {
		return g.sessions.Logout(ctx, exec, token)
	})
}

// Principal resolves the token without any authorization check.
func (g *Gateway) Principal(ctx context.Context, token string) (models.Principal, error) {
	principal, err := g.sessions.Resolve(ctx, g.tx.Executor(), token)
	if err != nil {
		return models.Anonymous, g.fail(OpCurrentUser, err)
	}
	return principal, nil
}

func (g *Gateway) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	principal, err := g.authorize(ctx, token, OpCurrentUser)
	if err != nil {
		return nil, err
	}
	user, err := g.identity.GetUser(ctx, g.tx.Executor(), principal.UserID)
	if err != nil {
		return nil, g.fail(OpCurrentUser, err)
	}
	return g.withUserURL(user), nil
}

func (g *Gateway) GetUser(ctx context.Context, token string, userID int64) (*models.User, error) {
	if _, err := g.authorize(ctx, token, OpGetUser); err != nil {
		return nil, err
	}
	user, err := g.identity.GetUser(ctx, g.tx.Executor(), userID)
	if err != nil {
		return nil, g.fail(OpGetUser, err)
	}
	return g.withUserURL(user), nil
}

func (g *Gateway) ListUsers(ctx context.Context, token string) ([]models.User, error) {
	if _, err := g.authorize(ctx, token, OpListUsers); err != nil {
		return nil, err
	}
	users, err := g.identity.ListUsers(ctx, g.tx.Executor())
	if err != nil {
		return nil, g.fail(OpListUsers, err)
	}
	for i := range users {
		g.withUserURL(&users[i])
	}
	return users, nil
}

func (g *Gateway) UpdateProfile(ctx context.Context, token string, fields models.ProfileFields) (*models.User, error) {
	principal, err := g.authorize(ctx, token, OpUpdateProfile)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = g.inTx(ctx, OpUpdateProfile, func(exec repositories.SQLExecutor) (err error) {
		user, err = g.identity.UpdateProfile(ctx, exec, principal, fields)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g.withUserURL(user), nil
}

func (g *Gateway) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	principal, err := g.authorize(ctx, token, OpChangePassword)
	if err != nil {
		return err
	}
	err = g.inTx(ctx, OpChangePassword, func(exec repositories.SQLExecutor) error {
		return g.identity.ChangePassword(ctx, exec, principal, oldPassword, newPassword)
	})
	if err == nil {
		g.logger.Info("password changed", "user_id", principal.UserID)
	}
	return err
}

func (g *Gateway) UploadPhoto(ctx context.Context, token string, file FileInput) (*models.User, error) {
	principal, err := g.authorize(ctx, token, OpSetPhoto)
	if err != nil {
		return nil, err
	}

	key, err := g.upload(ctx, OpSetPhoto, "users", principal.UserID, file)
	if err != nil {
		return nil, err
	}

	var (
		user     *models.User
		previous *string
	)
	err = g.inTx(ctx, OpSetPhoto, func(exec repositories.SQLExecutor) (err error) {
		user, previous, err = g.identity.SetPhoto(ctx, exec, principal, &key)
		return err
	})
	if err != nil {
		g.removeObject(ctx, &key)
		return nil, err
	}
	g.removeObject(ctx, previous)
	return g.withUserURL(user), nil
}

func (g *Gateway) DeleteUser(ctx context.Context, token string, userID int64) error {
	principal, err := g.authorize(ctx, token, OpDeleteUser)
	if err != nil {
		return err
	}

	var (
		deleted *models.User
		teamIDs []int64
	)
	err = g.inTx(ctx, OpDeleteUser, func(exec repositories.SQLExecutor) (err error) {
		deleted, teamIDs, err = g.identity.DeleteUser(ctx, exec, principal, userID)
		return err
	})
	if err != nil {
		return err
	}

	g.logger.Info("user deleted", "user_id", userID, "by", principal.UserID)
	g.removeObject(ctx, deleted.PhotoKey)
	for _, teamID := range teamIDs {
		g.publishMembership(teamID, userID, "removed")
	}
	return nil
}

// EnsureAdmin creates the configured admin account on startup if it is missing.
func (g *Gateway) EnsureAdmin(ctx context.Context, input RegisterInput) (*models.User, bool, error) {
	var (
		user    *models.User
		created bool
	)
	err := g.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) (err error) {
		user, created, err = g.identity.EnsureAdmin(ctx, exec, input)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

// PurgeExpiredSessions is run by the background sweeper, not by clients.
func (g *Gateway) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	var purged int64
	err := g.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) (err error) {
		purged, err = g.sessions.PurgeExpired(ctx, exec)
		return err
	})
	return purged, err
}

// --- catalog ---

func (g *Gateway) ListGames(ctx context.Context, token string) ([]models.Game, error) {
	if _, err := g.authorize(ctx, token, OpListGames); err != nil {
		return nil, err
	}
	games, err := g.catalog.ListGames(ctx, g.tx.Executor())
	if err != nil {
		return nil, g.fail(OpListGames, err)
	}
	for i := range games {
		g.withGameURL(&games[i])
	}
	return games, nil
}

func (g *Gateway) GetGame(ctx context.Context, token string, gameID int64) (*models.Game, error) {
	if _, err := g.authorize(ctx, token, OpGetGame); err != nil {
		return nil, err
	}
	game, err := g.catalog.GetGame(ctx, g.tx.Executor(), gameID)
	if err != nil {
		return nil, g.fail(OpGetGame, err)
	}
	return g.withGameURL(game), nil
}

func (g *Gateway) CreateGame(ctx context.Context, token string, input GameInput) (*models.Game, error) {
	if _, err := g.authorize(ctx, token, OpCreateGame); err != nil {
		return nil, err
	}
	var game *models.Game
	err := g.inTx(ctx, OpCreateGame, func(exec repositories.SQLExecutor) (err error) {
		game, err = g.catalog.CreateGame(ctx, exec, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g.withGameURL(game), nil
}

func (g *Gateway) UpdateGame(ctx context.Context, token string, gameID int64, input GameInput) (*models.Game, error) {
	if _, err := g.authorize(ctx, token, OpUpdateGame); err != nil {
		return nil, err
	}
	var game *models.Game
	err := g.inTx(ctx, OpUpdateGame, func(exec repositories.SQLExecutor) (err error) {
		game, err = g.catalog.UpdateGame(ctx, exec, gameID, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g.withGameURL(game), nil
}

func (g *Gateway) DeleteGame(ctx context.Context, token string, gameID int64) (*GameDeletion, error) {
	principal, err := g.authorize(ctx, token, OpDeleteGame)
	if err != nil {
		return nil, err
	}
	var deletion *GameDeletion
	err = g.inTx(ctx, OpDeleteGame, func(exec repositories.SQLExecutor) (err error) {
		deletion, err = g.catalog.DeleteGame(ctx, exec, gameID)
		return err
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("game deleted", "game_id", gameID, "by", principal.UserID,
		"deleted_teams", len(deletion.DeletedTeamIDs), "detached_teams", len(deletion.DetachedTeamIDs))
	g.removeObject(ctx, deletion.Game.ImageKey)
	for _, teamID := range deletion.DeletedTeamIDs {
		g.publish(teamID, events.TeamDeleted, TeamRefEvent{TeamID: teamID})
	}
	for _, teamID := range deletion.DetachedTeamIDs {
		g.publish(teamID, events.TeamUpdated, TeamRefEvent{TeamID: teamID})
	}
	return deletion, nil
}

func (g *Gateway) UploadGameImage(ctx context.Context, token string, gameID int64, file FileInput) (*models.Game, error) {
	if _, err := g.authorize(ctx, token, OpSetGameImage); err != nil {
		return nil, err
	}

	key, err := g.upload(ctx, OpSetGameImage, "games", gameID, file)
	if err != nil {
		return nil, err
	}

	var (
		game     *models.Game
		previous *string
	)
	err = g.inTx(ctx, OpSetGameImage, func(exec repositories.SQLExecutor) (err error) {
		game, previous, err = g.catalog.SetGameImage(ctx, exec, gameID, &key)
		return err
	})
	if err != nil {
		g.removeObject(ctx, &key)
		return nil, err
	}
	g.removeObject(ctx, previous)
	return g.withGameURL(game), nil
}

// --- teams ---

func (g *Gateway) ListTeams(ctx context.Context, token string, gameID *int64) ([]models.Team, error) {
	if _, err := g.authorize(ctx, token, OpListTeams); err != nil {
		return nil, err
	}
	teams, err := g.teams.ListTeams(ctx, g.tx.Executor(), gameID)
	if err != nil {
		return nil, g.fail(OpListTeams, err)
	}
	return teams, nil
}

func (g *Gateway) GetTeam(ctx context.Context, token string, teamID int64) (*models.Team, error) {
	if _, err := g.authorize(ctx, token, OpGetTeam); err != nil {
		return nil, err
	}
	team, err := g.teams.GetTeam(ctx, g.tx.Executor(), teamID)
	if err != nil {
		return nil, g.fail(OpGetTeam, err)
	}
	return g.withTeamURLs(team), nil
}

func (g *Gateway) CreateTeam(ctx context.Context, token string, gameID int64, name string) (*models.Team, error) {
	principal, err := g.authorize(ctx, token, OpCreateTeam)
	if err != nil {
		return nil, err
	}
	var team *models.Team
	err = g.inTx(ctx, OpCreateTeam, func(exec repositories.SQLExecutor) (err error) {
		team, err = g.teams.CreateTeam(ctx, exec, principal, gameID, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.withTeamURLs(team)
	g.publish(team.ID, events.TeamCreated, team)
	return team, nil
}

func (g *Gateway) JoinTeam(ctx context.Context, token string, teamID int64) (*models.Membership, error) {
	principal, err := g.authorize(ctx, token, OpJoinTeam)
	if err != nil {
		return nil, err
	}
	var membership *models.Membership
	err = g.inTx(ctx, OpJoinTeam, func(exec repositories.SQLExecutor) (err error) {
		membership, err = g.teams.JoinTeam(ctx, exec, principal.UserID, teamID)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.publishMembership(teamID, principal.UserID, "joined")
	return membership, nil
}

func (g *Gateway) LeaveTeam(ctx context.Context, token string, teamID int64) error {
	principal, err := g.authorize(ctx, token, OpLeaveTeam)
	if err != nil {
		return err
	}
	err = g.inTx(ctx, OpLeaveTeam, func(exec repositories.SQLExecutor) error {
		return g.teams.LeaveTeam(ctx, exec, principal.UserID, teamID)
	})
	if err != nil {
		return err
	}
	g.publishMembership(teamID, principal.UserID, "left")
	return nil
}

func (g *Gateway) RemoveMember(ctx context.Context, token string, teamID, userID int64) error {
	if _, err := g.authorize(ctx, token, OpRemoveMember); err != nil {
		return err
	}
	err := g.inTx(ctx, OpRemoveMember, func(exec repositories.SQLExecutor) error {
		return g.teams.RemoveMember(ctx, exec, teamID, userID)
	})
	if err != nil {
		return err
	}
	g.publishMembership(teamID, userID, "removed")
	return nil
}

func (g *Gateway) RenameTeam(ctx context.Context, token string, teamID int64, name string) (*models.Team, error) {
	if _, err := g.authorize(ctx, token, OpRenameTeam); err != nil {
		return nil, err
	}
	var team *models.Team
	err := g.inTx(ctx, OpRenameTeam, func(exec repositories.SQLExecutor) (err error) {
		team, err = g.teams.RenameTeam(ctx, exec, teamID, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.withTeamURLs(team)
	g.publish(team.ID, events.TeamUpdated, team)
	return team, nil
}

func (g *Gateway) DeleteTeam(ctx context.Context, token string, teamID int64) error {
	if _, err := g.authorize(ctx, token, OpDeleteTeam); err != nil {
		return err
	}
	err := g.inTx(ctx, OpDeleteTeam, func(exec repositories.SQLExecutor) error {
		return g.teams.DeleteTeam(ctx, exec, teamID)
	})
	if err != nil {
		return err
	}
	g.publish(teamID, events.TeamDeleted, TeamRefEvent{TeamID: teamID})
	return nil
}

func (g *Gateway) ReassignMembership(ctx context.Context, token string, userID, fromTeamID, toTeamID int64) (*models.Membership, error) {
	if _, err := g.authorize(ctx, token, OpReassignMembership); err != nil {
		return nil, err
	}
	var membership *models.Membership
	err := g.inTx(ctx, OpReassignMembership, func(exec repositories.SQLExecutor) (err error) {
		membership, err = g.teams.ReassignMembership(ctx, exec, userID, fromTeamID, toTeamID)
		return err
	})
	if err != nil {
		return nil, err
	}
	g.publishMembership(fromTeamID, userID, "removed")
	g.publishMembership(toTeamID, userID, "joined")
	return membership, nil
}

// --- donations & dashboard ---

func (g *Gateway) RecordDonation(ctx context.Context, token string, input DonationInput) (*models.Donation, error) {
	principal, err := g.authorize(ctx, token, OpRecordDonation)
	if err != nil {
		return nil, err
	}
	var donation *models.Donation
	err = g.inTx(ctx, OpRecordDonation, func(exec repositories.SQLExecutor) (err error) {
		donation, err = g.donations.RecordDonation(ctx, exec, principal, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return donation, nil
}

func (g *Gateway) ListDonations(ctx context.Context, token string) (*models.DonationLedger, error) {
	if _, err := g.authorize(ctx, token, OpListDonations); err != nil {
		return nil, err
	}
	ledger, err := g.donations.ListDonations(ctx, g.tx.Executor())
	if err != nil {
		return nil, g.fail(OpListDonations, err)
	}
	return ledger, nil
}

// Dashboard counts the visit and returns the platform totals.
func (g *Gateway) Dashboard(ctx context.Context, token string) (models.DashboardStats, error) {
	if _, err := g.authorize(ctx, token, OpDashboard); err != nil {
		return models.DashboardStats{}, err
	}
	visits, err := g.dashboard.RecordVisit(ctx, g.tx.Executor())
	if err != nil {
		return models.DashboardStats{}, g.fail(OpDashboard, err)
	}
	stats, err := g.dashboard.GetStats(ctx, g.tx.Executor())
	if err != nil {
		return models.DashboardStats{}, g.fail(OpDashboard, err)
	}
	// Значение от собственного инкремента, а не последующего чтения
	stats.VisitorCount = visits
	return stats, nil
}

// AuthorizeSubscribe checks that the caller may open an event stream.
func (g *Gateway) AuthorizeSubscribe(ctx context.Context, token string) error {
	_, err := g.authorize(ctx, token, OpSubscribe)
	return err
}

// --- uploads ---

func (g *Gateway) upload(ctx context.Context, op Operation, prefix string, ownerID int64, file FileInput) (string, error) {
	if g.uploader == nil {
		return "", ErrUploadsDisabled
	}
	if err := storage.ValidateImage(file.ContentType, file.Size); err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedUpload, err)
	}
	key, err := storage.NewObjectKey(prefix, ownerID, file.ContentType)
	if err != nil {
		return "", g.fail(op, err)
	}
	if _, err := g.uploader.Upload(ctx, key, file.ContentType, file.Body); err != nil {
		return "", g.fail(op, err)
	}
	return key, nil
}

func (g *Gateway) removeObject(ctx context.Context, key *string) {
	if g.uploader == nil || key == nil || *key == "" {
		return
	}
	if err := g.uploader.Delete(ctx, *key); err != nil && !errors.Is(err, context.Canceled) {
		g.logger.Warn("failed to delete stored object", "key", *key, "error", err)
	}
}
