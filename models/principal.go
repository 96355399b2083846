package models

// Principal is the resolved identity of the caller. The zero value is the anonymous caller.
type Principal struct {
	UserID    int64
	Username  string
	Role      UserRole
	SessionID string
}

var Anonymous = Principal{}

func (p Principal) IsAnonymous() bool {
	return p.UserID == 0
}

func (p Principal) IsAdmin() bool {
	return !p.IsAnonymous() && p.Role == RoleAdmin
}
