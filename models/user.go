package models

import "time"

type UserRole string

const (
	RoleStandard UserRole = "standard"
	RoleAdmin    UserRole = "admin"
)

func (r UserRole) Valid() bool {
	return r == RoleStandard || r == RoleAdmin
}

type User struct {
	ID           int64    `json:"id"`
	DisplayName  string   `json:"display_name"`
	Username     string   `json:"username"`
	Role         UserRole `json:"role"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"-"`

	// Необязательные поля профиля
	MobileNumber *string `json:"mobile_number,omitempty"`
	Gender       *string `json:"gender,omitempty"`
	Class        *string `json:"class,omitempty"`
	Year         *string `json:"year,omitempty"`

	PhotoKey *string `json:"-"`
	PhotoURL *string `json:"photo_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileFields are the user-editable parts of a profile. Nil means "leave unchanged".
type ProfileFields struct {
	DisplayName  *string `json:"display_name"`
	MobileNumber *string `json:"mobile_number"`
	Gender       *string `json:"gender"`
	Class        *string `json:"class"`
	Year         *string `json:"year"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
