package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Dosada05/campus-games/models"
)

func TestPolicyAuthorize(t *testing.T) {
	var policy Policy
	anonymous := models.Anonymous
	standard := models.Principal{UserID: 1, Username: "alice", Role: models.RoleStandard}
	admin := models.Principal{UserID: 2, Username: "root", Role: models.RoleAdmin}

	for _, op := range []Operation{OpRegister, OpLogin, OpListGames, OpGetGame} {
		assert.NoError(t, policy.Authorize(anonymous, op), op)
		assert.NoError(t, policy.Authorize(standard, op), op)
	}

	for _, op := range []Operation{OpCreateTeam, OpJoinTeam, OpLeaveTeam, OpDashboard, OpRecordDonation} {
		assert.ErrorIs(t, policy.Authorize(anonymous, op), ErrUnauthenticated, op)
		assert.NoError(t, policy.Authorize(standard, op), op)
		assert.NoError(t, policy.Authorize(admin, op), op)
	}

	for _, op := range AdminOperations() {
		assert.True(t, IsAdminOperation(op))
		assert.ErrorIs(t, policy.Authorize(anonymous, op), ErrUnauthenticated, op)
		assert.ErrorIs(t, policy.Authorize(standard, op), ErrPermissionDenied, op)
		assert.NoError(t, policy.Authorize(admin, op), op)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(validationError("bad %s", "input")))
	assert.Equal(t, KindConflict, KindOf(ErrTeamFull))
	assert.Equal(t, KindInternal, KindOf(assert.AnError))

	svcErr, ok := AsError(validationError("name is required"))
	assert.True(t, ok)
	assert.Equal(t, "validation_failed", svcErr.Code)
}
