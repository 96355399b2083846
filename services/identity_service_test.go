package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/campus-games/models"
)

func TestRegisterDuplicateScenario(t *testing.T) {
	h := newHarness(t)

	alice, err := h.gw.Register(h.ctx, RegisterInput{DisplayName: "Alice", Username: "alice", Email: "alice@x.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStandard, alice.Role)
	assert.Empty(t, alice.PasswordHash)

	_, err = h.gw.Register(h.ctx, RegisterInput{DisplayName: "Alice 2", Username: "alice", Email: "other@x.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = h.gw.Register(h.ctx, RegisterInput{DisplayName: "Bob", Username: "bob", Email: "alice@x.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	assert.Equal(t, 1, h.count("users"))
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)

	cases := map[string]RegisterInput{
		"missing display name": {Username: "carol", Email: "carol@x.com", Password: testPassword},
		"short username":       {DisplayName: "C", Username: "ca", Email: "carol@x.com", Password: testPassword},
		"username with space":  {DisplayName: "C", Username: "car ol", Email: "carol@x.com", Password: testPassword},
		"bad email":            {DisplayName: "C", Username: "carol", Email: "not-an-email", Password: testPassword},
		"email with name":      {DisplayName: "C", Username: "carol", Email: "Carol <carol@x.com>", Password: testPassword},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.gw.Register(h.ctx, input)
			assert.ErrorIs(t, err, ErrValidationFailed)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}

	_, err := h.gw.Register(h.ctx, RegisterInput{DisplayName: "C", Username: "carol", Email: "carol@x.com", Password: "short"})
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = h.gw.Register(h.ctx, RegisterInput{DisplayName: "C", Username: "carol", Email: "carol@x.com", Password: strings.Repeat("a", 73)})
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	assert.Equal(t, 0, h.count("users"))
}

func TestRegisterCannotChooseRole(t *testing.T) {
	h := newHarness(t)
	user, err := h.gw.Register(h.ctx, RegisterInput{
		DisplayName: "Mallory", Username: "mallory", Email: "m@x.com", Password: testPassword, Role: models.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStandard, user.Role)
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	h.register("alice")

	_, err := h.gw.Login(h.ctx, models.Credentials{Username: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = h.gw.Login(h.ctx, models.Credentials{Username: "nobody", Password: testPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Equal(t, 0, h.count("sessions"))
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	_, token := h.user("alice")

	err := h.gw.ChangePassword(h.ctx, token, "wrong-password", "new-password-1")
	assert.ErrorIs(t, err, ErrWrongPassword)

	err = h.gw.ChangePassword(h.ctx, token, testPassword, "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	require.NoError(t, h.gw.ChangePassword(h.ctx, token, testPassword, "new-password-1"))

	_, err = h.gw.Login(h.ctx, models.Credentials{Username: "alice", Password: testPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.gw.Login(h.ctx, models.Credentials{Username: "alice", Password: "new-password-1"})
	assert.NoError(t, err)
}

func TestUpdateProfileOnlyTouchesProfileFields(t *testing.T) {
	h := newHarness(t)
	alice, token := h.user("alice")

	name := "  Alice Liddell "
	mobile := "+1 555 0100"
	year := "   "
	updated, err := h.gw.UpdateProfile(h.ctx, token, models.ProfileFields{DisplayName: &name, MobileNumber: &mobile, Year: &year})
	require.NoError(t, err)

	assert.Equal(t, "Alice Liddell", updated.DisplayName)
	require.NotNil(t, updated.MobileNumber)
	assert.Equal(t, mobile, *updated.MobileNumber)
	assert.Nil(t, updated.Year)
	assert.Equal(t, alice.Username, updated.Username)
	assert.Equal(t, alice.Email, updated.Email)
	assert.Equal(t, models.RoleStandard, updated.Role)

	empty := ""
	_, err = h.gw.UpdateProfile(h.ctx, token, models.ProfileFields{DisplayName: &empty})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestDeleteUser(t *testing.T) {
	h := newHarness(t)
	admin, adminToken := h.admin()
	alice, aliceToken := h.user("alice")
	game := h.game(adminToken, "Chess", 4)
	team, err := h.gw.CreateTeam(h.ctx, aliceToken, game.ID, "Rooks")
	require.NoError(t, err)

	// Самоудаление запрещено даже единственному админу
	err = h.gw.DeleteUser(h.ctx, adminToken, admin.ID)
	assert.ErrorIs(t, err, ErrSelfDeletion)

	err = h.gw.DeleteUser(h.ctx, adminToken, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, h.gw.DeleteUser(h.ctx, adminToken, alice.ID))

	assert.Empty(t, h.members(team.ID))
	_, err = h.gw.GetUser(h.ctx, adminToken, alice.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	// Сессии удаленного пользователя больше не действуют
	_, err = h.gw.CurrentUser(h.ctx, aliceToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// Команда остается, хоть и пустая
	_, err = h.gw.GetTeam(h.ctx, adminToken, team.ID)
	assert.NoError(t, err)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	h := newHarness(t)
	first, _ := h.admin()

	user, created, err := h.gw.EnsureAdmin(h.ctx, RegisterInput{
		DisplayName: "Other", Username: "admin", Email: "other@example.com", Password: testPassword,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, user.ID)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.Equal(t, 1, h.count("users"))
}

func TestListUsersRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	_, adminToken := h.admin()
	_, aliceToken := h.user("alice")

	users, err := h.gw.ListUsers(h.ctx, adminToken)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
	}

	_, err = h.gw.ListUsers(h.ctx, aliceToken)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
