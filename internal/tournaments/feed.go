package tournaments

import (
	"squadforge-backend/internal/models"

	"gorm.io/gorm"
)

// winStreakWindow caps how far back the streak scan looks.
const winStreakWindow = 50

// Feed is the database-backed tournament result reader. It only issues
// SELECTs; result rows are written by the Ingestor.
type Feed struct {
	db *gorm.DB
}

func NewFeed(db *gorm.DB) *Feed {
	return &Feed{db: db}
}

// RecentPlacements returns final placements of the team's most recently
// ended tournaments, newest first. Unplaced participations report 0.
func (f *Feed) RecentPlacements(teamID uint, limit int) ([]int, error) {
	participations, err := models.RecentParticipations(f.db, teamID, limit)
	if err != nil {
		return nil, err
	}
	placements := make([]int, 0, len(participations))
	for _, p := range participations {
		if p.FinalPlacement != nil {
			placements = append(placements, *p.FinalPlacement)
		} else {
			placements = append(placements, 0)
		}
	}
	return placements, nil
}

// WinStreakLength scans the team's completed matches, most recent first,
// and counts consecutive wins until the first non-win or the end of the
// window.
func (f *Feed) WinStreakLength(teamID uint) (int, error) {
	matches, err := models.RecentCompletedMatches(f.db, teamID, winStreakWindow)
	if err != nil {
		return 0, err
	}
	streak := 0
	for _, match := range matches {
		if match.WinnerTeamID == nil || *match.WinnerTeamID != teamID {
			break
		}
		streak++
	}
	return streak, nil
}
