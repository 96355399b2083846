package models

type DashboardStats struct {
	VisitorCount int64 `json:"visitor_count"`
	UsersTotal   int64 `json:"users_total"`
	GamesTotal   int64 `json:"games_total"`
	TeamsTotal   int64 `json:"teams_total"`
}
