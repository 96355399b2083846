package models

import "time"

type Team struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	GameID    *int64    `json:"game_id" db:"game_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	MemberIDs []int64 `json:"member_ids" db:"-"`
	Game      *Game   `json:"game,omitempty" db:"-"`
	Members   []User  `json:"members,omitempty" db:"-"`
}

func (t *Team) HasMember(userID int64) bool {
	for _, id := range t.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Membership is one row of the user<->team relation, unique per pair.
type Membership struct {
	UserID   int64     `json:"user_id" db:"user_id"`
	TeamID   int64     `json:"team_id" db:"team_id"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}
