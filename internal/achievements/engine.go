package achievements

import (
	"errors"
	"fmt"
	"squadforge-backend/internal/models"
	"squadforge-backend/internal/notifications"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// ErrUnknownType is returned for achievement types missing from the catalog.
var ErrUnknownType = errors.New("unknown achievement type")

// ResultFeed is the read-only tournament result source the engine consumes.
// The engine never writes through it.
type ResultFeed interface {
	// RecentPlacements returns final placements of the team's most recently
	// ended tournaments, newest first. Unplaced participations are 0.
	RecentPlacements(teamID uint, limit int) ([]int, error)
	// WinStreakLength returns the length of the team's current run of
	// consecutive wins over its completed matches, most recent first.
	WinStreakLength(teamID uint) (int, error)
}

// Engine detects milestone conditions and awards achievements. Awarding is
// idempotent for non-progressive types; win_streak appends a row for the
// highest satisfied threshold on every qualifying evaluation.
type Engine struct {
	db       *gorm.DB
	catalog  Catalog
	feed     ResultFeed
	notifier notifications.Notifier
	board    notifications.Board
	logger   echo.Logger
}

func NewEngine(db *gorm.DB, catalog Catalog, feed ResultFeed, notifier notifications.Notifier, board notifications.Board, logger echo.Logger) *Engine {
	return &Engine{
		db:       db,
		catalog:  catalog,
		feed:     feed,
		notifier: notifier,
		board:    board,
		logger:   logger,
	}
}

// Award grants an achievement to a team. For non-progressive types an
// existing row of the same type makes this a no-op returning (nil, nil):
// nothing is created and nobody is notified. Uniqueness for those types is
// enforced by the partial unique index on (team_id, achievement_type), so a
// concurrent awarder losing the insert race gets the same silent no-op
// instead of a second row.
func (e *Engine) Award(teamID uint, achievementType models.AchievementType, metadata map[string]interface{}) (*models.TeamAchievement, error) {
	template, ok := e.catalog[achievementType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, achievementType)
	}

	if !template.Progressive {
		exists, err := models.HasAchievement(e.db, teamID, achievementType)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, nil
		}
	}

	title, description := template.Render(metadata)
	record := models.TeamAchievement{
		TeamID:          teamID,
		AchievementType: achievementType,
		Title:           title,
		Description:     description,
		Icon:            template.Icon,
		Metadata:        metadata,
		EarnedAt:        time.Now(),
	}
	if err := e.db.Create(&record).Error; err != nil {
		if !template.Progressive && errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil
		}
		return nil, err
	}

	e.fanOut(&record)
	return &record, nil
}

// fanOut notifies every active member and posts the announcement. Gateway
// failures are logged; the achievement stays awarded either way.
func (e *Engine) fanOut(record *models.TeamAchievement) {
	var team models.Team
	if err := e.db.First(&team, record.TeamID).Error; err != nil {
		e.logf("Failed to load team %d for achievement fan-out: %v", record.TeamID, err)
		return
	}

	var members []models.TeamMember
	if err := e.db.Preload("User").
		Where("team_id = ? AND status = ?", team.ID, models.MemberStatusActive).
		Find(&members).Error; err != nil {
		e.logf("Failed to load members of team %d for achievement fan-out: %v", team.ID, err)
		return
	}

	if e.notifier != nil {
		for _, member := range members {
			if member.User == nil {
				continue
			}
			e.notifier.Notify(notifications.Notification{
				User:          member.User,
				Title:         fmt.Sprintf("Achievement unlocked: %s", record.Title),
				Message:       record.Description,
				Category:      "achievement",
				Priority:      models.PriorityNormal,
				RelatedEntity: fmt.Sprintf("achievement:%d", record.ID),
				Metadata:      map[string]interface{}{"achievement_type": string(record.AchievementType)},
			})
		}
	}

	if e.board != nil {
		content := fmt.Sprintf("%s earned the %q achievement: %s", team.Name, record.Title, record.Description)
		if err := e.board.Post(team.ID, team.CaptainID, record.Title, content, models.AnnouncementImportant, false); err != nil {
			e.logf("Failed to post achievement announcement for team %d: %v", team.ID, err)
		}
	}
}

// CheckRosterMilestones re-evaluates roster-driven achievements after a
// member becomes active.
func (e *Engine) CheckRosterMilestones(team *models.Team) {
	count, err := team.ActiveMemberCount(e.db)
	if err != nil {
		e.logf("Failed to count members of team %d: %v", team.ID, err)
		return
	}
	if count == int64(team.MaxMembers) {
		if _, err := e.Award(team.ID, models.AchievementFullRoster, nil); err != nil {
			e.logf("Failed to award full_roster to team %d: %v", team.ID, err)
		}
	}
}

// CheckTournamentsPlayed awards the participation milestone matching the
// team's exact tournaments_played count, if any.
func (e *Engine) CheckTournamentsPlayed(team *models.Team) {
	milestone, ok := tournamentsPlayedMilestones[team.TournamentsPlayed]
	if !ok {
		return
	}
	if _, err := e.Award(team.ID, milestone, nil); err != nil {
		e.logf("Failed to award %s to team %d: %v", milestone, team.ID, err)
	}
}

// CheckTournamentResult re-evaluates tournament-driven achievements for a
// team's final participant record. Only a first-place finish triggers the
// champion family and the streak/dynasty re-evaluation.
func (e *Engine) CheckTournamentResult(team *models.Team, finalPlacement, matchesWon, matchesLost int) {
	if finalPlacement != 1 {
		return
	}

	if _, err := e.Award(team.ID, models.AchievementTournamentChampion, nil); err != nil {
		e.logf("Failed to award tournament_champion to team %d: %v", team.ID, err)
	}
	if team.TournamentsWon == 1 {
		if _, err := e.Award(team.ID, models.AchievementFirstWin, nil); err != nil {
			e.logf("Failed to award first_win to team %d: %v", team.ID, err)
		}
	}
	if matchesLost == 0 && matchesWon > 0 {
		if _, err := e.Award(team.ID, models.AchievementUndefeated, nil); err != nil {
			e.logf("Failed to award undefeated to team %d: %v", team.ID, err)
		}
	}

	e.checkDynasty(team)
	e.CheckWinStreak(team)
}

// checkDynasty awards dynasty when the three most recent tournament
// participations, ordered by tournament end time, are all first places.
func (e *Engine) checkDynasty(team *models.Team) {
	if e.feed == nil {
		return
	}
	placements, err := e.feed.RecentPlacements(team.ID, 3)
	if err != nil {
		e.logf("Failed to read recent placements for team %d: %v", team.ID, err)
		return
	}
	if len(placements) < 3 {
		return
	}
	for _, placement := range placements {
		if placement != 1 {
			return
		}
	}
	if _, err := e.Award(team.ID, models.AchievementDynasty, nil); err != nil {
		e.logf("Failed to award dynasty to team %d: %v", team.ID, err)
	}
}

// CheckWinStreak awards a win_streak row for the highest threshold the
// team's current streak satisfies. One row per evaluation call; previous
// rows for the same threshold are intentionally not consulted.
func (e *Engine) CheckWinStreak(team *models.Team) {
	if e.feed == nil {
		return
	}
	streak, err := e.feed.WinStreakLength(team.ID)
	if err != nil {
		e.logf("Failed to compute win streak for team %d: %v", team.ID, err)
		return
	}
	for _, threshold := range winStreakThresholds {
		if streak >= threshold {
			if _, err := e.Award(team.ID, models.AchievementWinStreak, map[string]interface{}{"count": threshold}); err != nil {
				e.logf("Failed to award win_streak(%d) to team %d: %v", threshold, team.ID, err)
			}
			return
		}
	}
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Errorf(format, args...)
	}
}
