package models

import (
	"time"

	"gorm.io/gorm"
)

// Tournament is a read model fed by the bracket service; this backend only
// consumes results, it never generates brackets.
type Tournament struct {
	gorm.Model
	Name       string     `gorm:"not null" json:"name"`
	GameID     uint       `gorm:"not null;index" json:"game_id"`
	ExternalID string     `gorm:"uniqueIndex" json:"external_id"`
	EndedAt    *time.Time `gorm:"index" json:"ended_at"`
}

// TournamentParticipant records one team's outcome in one tournament.
// FinalPlacement 1 means champion; nil means not yet placed.
type TournamentParticipant struct {
	gorm.Model
	TournamentID uint        `gorm:"not null;uniqueIndex:idx_participant_tournament_team" json:"tournament_id"`
	Tournament   *Tournament `json:"tournament,omitempty"`
	TeamID       uint        `gorm:"not null;uniqueIndex:idx_participant_tournament_team;index" json:"team_id"`
	Team         *Team       `json:"team,omitempty"`

	FinalPlacement *int `json:"final_placement"`
	MatchesWon     int  `gorm:"default:0" json:"matches_won"`
	MatchesLost    int  `gorm:"default:0" json:"matches_lost"`
}

// Match is one completed match between two teams.
type Match struct {
	gorm.Model
	TournamentID uint       `gorm:"not null;index" json:"tournament_id"`
	HomeTeamID   uint       `gorm:"not null;index" json:"home_team_id"`
	AwayTeamID   uint       `gorm:"not null;index" json:"away_team_id"`
	WinnerTeamID *uint      `json:"winner_team_id"`
	CompletedAt  *time.Time `gorm:"index" json:"completed_at"`
}

// RecentCompletedMatches returns the team's completed matches,
// most recent first, capped at limit.
func RecentCompletedMatches(db *gorm.DB, teamID uint, limit int) ([]Match, error) {
	var matches []Match
	err := db.Where("(home_team_id = ? OR away_team_id = ?) AND completed_at IS NOT NULL",
		teamID, teamID).
		Order("completed_at DESC").
		Limit(limit).
		Find(&matches).Error
	return matches, err
}

// RecentParticipations returns the team's participations in ended
// tournaments, most recently ended first.
func RecentParticipations(db *gorm.DB, teamID uint, limit int) ([]TournamentParticipant, error) {
	var participations []TournamentParticipant
	err := db.Joins("JOIN tournaments ON tournaments.id = tournament_participants.tournament_id").
		Where("tournament_participants.team_id = ? AND tournaments.ended_at IS NOT NULL", teamID).
		Order("tournaments.ended_at DESC").
		Limit(limit).
		Find(&participations).Error
	return participations, err
}
