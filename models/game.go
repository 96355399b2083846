package models

import "time"

// Game is catalog reference data. TeamSize is the capacity of every team formed for it.
type Game struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Details  string `json:"details" db:"details"`
	TeamSize int    `json:"team_size" db:"team_size"`

	ImageKey *string `json:"-" db:"image_key"`
	ImageURL *string `json:"image_url,omitempty" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
