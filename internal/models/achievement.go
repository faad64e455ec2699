package models

import (
	"time"

	"gorm.io/gorm"
)

type AchievementType string

const (
	AchievementFirstWin           AchievementType = "first_win"
	AchievementTournamentChampion AchievementType = "tournament_champion"
	AchievementUndefeated         AchievementType = "undefeated"
	AchievementDynasty            AchievementType = "dynasty"
	AchievementFullRoster         AchievementType = "full_roster"
	AchievementGettingStarted     AchievementType = "getting_started"
	AchievementExperienced        AchievementType = "experienced"
	AchievementVeterans           AchievementType = "veterans"
	AchievementLegends            AchievementType = "legends"
	// Progressive: re-awardable, one row per reached streak threshold
	AchievementWinStreak AchievementType = "win_streak"
)

// TeamAchievement is append-only; rows are never mutated after creation.
// Non-progressive types get at most one row per team, backed by the partial
// unique index so concurrent awarders cannot double-grant. win_streak rows
// are excluded from the index and distinguished by the "count" metadata key.
type TeamAchievement struct {
	gorm.Model
	TeamID          uint            `gorm:"not null;index;uniqueIndex:idx_team_achievement_once,where:achievement_type <> 'win_streak'" json:"team_id"`
	Team            *Team           `json:"team,omitempty"`
	AchievementType AchievementType `gorm:"not null;index;uniqueIndex:idx_team_achievement_once" json:"achievement_type"`

	Title       string                 `gorm:"not null" json:"title"`
	Description string                 `json:"description"`
	Icon        string                 `json:"icon"`
	Metadata    map[string]interface{} `gorm:"serializer:json" json:"metadata"`
	EarnedAt    time.Time              `json:"earned_at"`
}

// HasAchievement reports whether the team already holds an achievement of
// the given type.
func HasAchievement(db *gorm.DB, teamID uint, achievementType AchievementType) (bool, error) {
	var count int64
	err := db.Model(&TeamAchievement{}).
		Where("team_id = ? AND achievement_type = ?", teamID, achievementType).
		Count(&count).Error
	return count > 0, err
}
