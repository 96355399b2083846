package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/campus-games/events"
	"github.com/Dosada05/campus-games/repositories"
)

func TestParseGameDeletePolicy(t *testing.T) {
	for input, want := range map[string]GameDeletePolicy{
		"":         DeletePolicyDeny,
		"deny":     DeletePolicyDeny,
		"Cascade":  DeletePolicyCascade,
		" nullify": DeletePolicyNullify,
	} {
		got, err := ParseGameDeletePolicy(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
	_, err := ParseGameDeletePolicy("archive")
	assert.Error(t, err)
}

func TestGameValidationAndConflicts(t *testing.T) {
	h := newHarness(t)
	_, adminToken := h.admin()

	_, err := h.gw.CreateGame(h.ctx, adminToken, GameInput{Name: " ", TeamSize: 2})
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = h.gw.CreateGame(h.ctx, adminToken, GameInput{Name: "Chess", TeamSize: 0})
	assert.ErrorIs(t, err, ErrValidationFailed)

	chess := h.game(adminToken, "Chess", 2)
	_, err = h.gw.CreateGame(h.ctx, adminToken, GameInput{Name: "Chess", TeamSize: 3})
	assert.ErrorIs(t, err, ErrGameNameConflict)

	goGame := h.game(adminToken, "Go", 2)
	_, err = h.gw.UpdateGame(h.ctx, adminToken, goGame.ID, GameInput{Name: "Chess", TeamSize: 2})
	assert.ErrorIs(t, err, ErrGameNameConflict)

	updated, err := h.gw.UpdateGame(h.ctx, adminToken, chess.ID, GameInput{Name: "Chess960", Details: "random start", TeamSize: 4})
	require.NoError(t, err)
	assert.Equal(t, "Chess960", updated.Name)
	assert.Equal(t, 4, updated.TeamSize)

	_, err = h.gw.UpdateGame(h.ctx, adminToken, 999, GameInput{Name: "X", TeamSize: 1})
	assert.ErrorIs(t, err, ErrGameNotFound)

	games, err := h.gw.ListGames(h.ctx, "")
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, "Chess960", games[0].Name)
}

// setupRooks builds the scenario: game "Chess" referenced by team "Rooks" with two members.
func setupRooks(t *testing.T, h *harness) (adminToken string, chessID, rooksID int64) {
	t.Helper()
	_, adminToken = h.admin()
	_, ownerToken := h.user("owner")
	_, memberToken := h.user("member")
	chess := h.game(adminToken, "Chess", 2)
	rooks, err := h.gw.CreateTeam(h.ctx, ownerToken, chess.ID, "Rooks")
	require.NoError(t, err)
	_, err = h.gw.JoinTeam(h.ctx, memberToken, rooks.ID)
	require.NoError(t, err)
	return adminToken, chess.ID, rooks.ID
}

func TestDeleteGameDenyPolicy(t *testing.T) {
	h := newHarness(t, withDeletePolicy(DeletePolicyDeny))
	adminToken, chessID, rooksID := setupRooks(t, h)

	_, err := h.gw.DeleteGame(h.ctx, adminToken, chessID)
	assert.ErrorIs(t, err, ErrGameInUse)
	assert.Equal(t, KindConflict, KindOf(err))

	_, err = h.gw.GetGame(h.ctx, "", chessID)
	require.NoError(t, err)
	assert.Len(t, h.members(rooksID), 2)

	// Без команд удаление проходит
	require.NoError(t, h.gw.DeleteTeam(h.ctx, adminToken, rooksID))
	_, err = h.gw.DeleteGame(h.ctx, adminToken, chessID)
	require.NoError(t, err)
	_, err = h.gw.GetGame(h.ctx, "", chessID)
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestDeleteGameCascadePolicy(t *testing.T) {
	h := newHarness(t, withDeletePolicy(DeletePolicyCascade))
	adminToken, chessID, rooksID := setupRooks(t, h)

	deletion, err := h.gw.DeleteGame(h.ctx, adminToken, chessID)
	require.NoError(t, err)
	assert.Equal(t, []int64{rooksID}, deletion.DeletedTeamIDs)

	_, err = h.gw.GetTeam(h.ctx, adminToken, rooksID)
	assert.ErrorIs(t, err, ErrTeamNotFound)
	assert.Equal(t, 0, h.count("memberships"))
	assert.Equal(t, 0, h.count("games"))
	assert.Contains(t, h.events.types(events.TeamsRoom), events.TeamDeleted)
}

func TestDeleteGameNullifyPolicy(t *testing.T) {
	h := newHarness(t, withDeletePolicy(DeletePolicyNullify))
	adminToken, chessID, rooksID := setupRooks(t, h)

	deletion, err := h.gw.DeleteGame(h.ctx, adminToken, chessID)
	require.NoError(t, err)
	assert.Equal(t, []int64{rooksID}, deletion.DetachedTeamIDs)

	team, err := h.gw.GetTeam(h.ctx, adminToken, rooksID)
	require.NoError(t, err)
	assert.Nil(t, team.GameID)
	assert.Nil(t, team.Game)
	assert.Len(t, team.MemberIDs, 2)
	assert.Equal(t, 0, h.count("games"))

	// Команда без игры принимает участников без лимита
	_, token := h.user("late")
	_, err = h.gw.JoinTeam(h.ctx, token, rooksID)
	assert.NoError(t, err)
}

func TestDeleteMissingGame(t *testing.T) {
	for _, policy := range []GameDeletePolicy{DeletePolicyDeny, DeletePolicyCascade, DeletePolicyNullify} {
		h := newHarness(t, withDeletePolicy(policy))
		_, adminToken := h.admin()
		_, err := h.gw.DeleteGame(h.ctx, adminToken, 31337)
		assert.ErrorIs(t, err, ErrGameNotFound, string(policy))
	}
}

// staleCountTeamRepo reports no teams for any game, as if a team was created after the count.
type staleCountTeamRepo struct {
	repositories.TeamRepository
}

func (staleCountTeamRepo) CountByGame(context.Context, repositories.SQLExecutor, int64) (int64, error) {
	return 0, nil
}

func TestDeleteGameDenyPolicyFallsBackToForeignKey(t *testing.T) {
	h := newHarness(t, withDeletePolicy(DeletePolicyDeny))
	_, chessID, rooksID := setupRooks(t, h)

	dialect := repositories.SQLite
	catalog := NewCatalogService(
		repositories.NewGameRepository(dialect),
		staleCountTeamRepo{repositories.NewTeamRepository(dialect)},
		repositories.NewMembershipRepository(dialect),
		DeletePolicyDeny,
	)

	err := repositories.NewTransactor(h.conn, dialect).WithinTx(h.ctx, func(exec repositories.SQLExecutor) error {
		_, err := catalog.DeleteGame(h.ctx, exec, chessID)
		return err
	})
	assert.ErrorIs(t, err, ErrGameInUse)
	assert.Equal(t, KindConflict, KindOf(err))

	assert.Equal(t, 1, h.count("games"))
	assert.Len(t, h.members(rooksID), 2)
}
