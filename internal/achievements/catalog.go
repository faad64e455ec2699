package achievements

import (
	"fmt"
	"squadforge-backend/internal/models"
)

// Template describes one achievement type. Progressive templates may be
// awarded repeatedly; the rest are one-shot per team.
type Template struct {
	Type        models.AchievementType
	Title       string
	Description string
	Icon        string
	Progressive bool
}

// Catalog is the immutable achievement type table injected into the engine.
type Catalog map[models.AchievementType]Template

// Render produces the concrete title/description for a template. For
// win_streak the count metadata value is interpolated into the description.
func (t Template) Render(metadata map[string]interface{}) (string, string) {
	if t.Type == models.AchievementWinStreak {
		if count, ok := metadata["count"]; ok {
			return t.Title, fmt.Sprintf(t.Description, count)
		}
	}
	return t.Title, t.Description
}

// DefaultCatalog returns the fixed achievement catalog.
//
// tournament_champion is deliberately once-per-team-ever like every other
// non-progressive type, so a second tournament win grants nothing new.
func DefaultCatalog() Catalog {
	return Catalog{
		models.AchievementFirstWin: {
			Type:        models.AchievementFirstWin,
			Title:       "First Blood",
			Description: "Won a tournament for the first time",
			Icon:        "trophy-bronze",
		},
		models.AchievementTournamentChampion: {
			Type:        models.AchievementTournamentChampion,
			Title:       "Tournament Champions",
			Description: "Finished a tournament in first place",
			Icon:        "trophy-gold",
		},
		models.AchievementUndefeated: {
			Type:        models.AchievementUndefeated,
			Title:       "Undefeated",
			Description: "Won a tournament without losing a single match",
			Icon:        "shield",
		},
		models.AchievementDynasty: {
			Type:        models.AchievementDynasty,
			Title:       "Dynasty",
			Description: "Won three tournaments in a row",
			Icon:        "crown",
		},
		models.AchievementFullRoster: {
			Type:        models.AchievementFullRoster,
			Title:       "Full Squad",
			Description: "Filled every roster slot",
			Icon:        "users",
		},
		models.AchievementGettingStarted: {
			Type:        models.AchievementGettingStarted,
			Title:       "Getting Started",
			Description: "Played the first tournament",
			Icon:        "flag",
		},
		models.AchievementExperienced: {
			Type:        models.AchievementExperienced,
			Title:       "Experienced",
			Description: "Played 10 tournaments",
			Icon:        "medal",
		},
		models.AchievementVeterans: {
			Type:        models.AchievementVeterans,
			Title:       "Veterans",
			Description: "Played 50 tournaments",
			Icon:        "star",
		},
		models.AchievementLegends: {
			Type:        models.AchievementLegends,
			Title:       "Legends",
			Description: "Played 100 tournaments",
			Icon:        "diamond",
		},
		models.AchievementWinStreak: {
			Type:        models.AchievementWinStreak,
			Title:       "On a Roll",
			Description: "Won %v matches in a row",
			Icon:        "fire",
			Progressive: true,
		},
	}
}

// winStreakThresholds are the streak lengths that earn a win_streak row,
// highest first.
var winStreakThresholds = []int{20, 10, 5}

// tournamentsPlayedMilestones maps exact tournaments_played values to their
// milestone achievement.
var tournamentsPlayedMilestones = map[int]models.AchievementType{
	1:   models.AchievementGettingStarted,
	10:  models.AchievementExperienced,
	50:  models.AchievementVeterans,
	100: models.AchievementLegends,
}
