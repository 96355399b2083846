package services

import "github.com/Dosada05/campus-games/models"

// Operation names a gateway entry point for authorization purposes.
type Operation string

const (
	OpRegister  Operation = "register"
	OpLogin     Operation = "login"
	OpListGames Operation = "list_games"
	OpGetGame   Operation = "get_game"

	OpLogout         Operation = "logout"
	OpCurrentUser    Operation = "current_user"
	OpUpdateProfile  Operation = "update_profile"
	OpChangePassword Operation = "change_password"
	OpSetPhoto       Operation = "set_photo"
	OpGetUser        Operation = "get_user"
	OpListTeams      Operation = "list_teams"
	OpGetTeam        Operation = "get_team"
	OpCreateTeam     Operation = "create_team"
	OpJoinTeam       Operation = "join_team"
	OpLeaveTeam      Operation = "leave_team"
	OpRecordDonation Operation = "record_donation"
	OpDashboard      Operation = "dashboard"
	OpSubscribe      Operation = "subscribe"

	OpCreateGame         Operation = "create_game"
	OpUpdateGame         Operation = "update_game"
	OpDeleteGame         Operation = "delete_game"
	OpSetGameImage       Operation = "set_game_image"
	OpRenameTeam         Operation = "rename_team"
	OpDeleteTeam         Operation = "delete_team"
	OpReassignMembership Operation = "reassign_membership"
	OpRemoveMember       Operation = "remove_member"
	OpDeleteUser         Operation = "delete_user"
	OpListUsers          Operation = "list_users"
	OpListDonations      Operation = "list_donations"
)

var publicOperations = map[Operation]bool{
	OpRegister:  true,
	OpLogin:     true,
	OpListGames: true,
	OpGetGame:   true,
}

var adminOperations = map[Operation]bool{
	OpCreateGame:         true,
	OpUpdateGame:         true,
	OpDeleteGame:         true,
	OpSetGameImage:       true,
	OpRenameTeam:         true,
	OpDeleteTeam:         true,
	OpReassignMembership: true,
	OpRemoveMember:       true,
	OpDeleteUser:         true,
	OpListUsers:          true,
	OpListDonations:      true,
}

// Policy decides whether a principal may invoke an operation. It is stateless;
// the role it checks comes from the session captured at login.
type Policy struct{}

func (Policy) Authorize(p models.Principal, op Operation) error {
	if publicOperations[op] {
		return nil
	}
	if p.IsAnonymous() {
		return ErrUnauthenticated
	}
	if adminOperations[op] && p.Role != models.RoleAdmin {
		return ErrPermissionDenied
	}
	return nil
}

// IsAdminOperation reports whether op requires the admin role.
func IsAdminOperation(op Operation) bool {
	return adminOperations[op]
}

// AdminOperations lists every admin-only operation.
func AdminOperations() []Operation {
	ops := make([]Operation, 0, len(adminOperations))
	for op := range adminOperations {
		ops = append(ops, op)
	}
	return ops
}
