package tournaments

import (
	"errors"
	"fmt"
	"squadforge-backend/internal/models"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// Milestones is the achievement engine surface the ingestor triggers after
// storing results.
type Milestones interface {
	CheckTournamentsPlayed(team *models.Team)
	CheckTournamentResult(team *models.Team, finalPlacement, matchesWon, matchesLost int)
}

// Ingestor stores bracket service results as local read models, bumps team
// aggregate stats, and triggers achievement re-evaluation.
type Ingestor struct {
	db         *gorm.DB
	milestones Milestones
	logger     echo.Logger
}

func NewIngestor(db *gorm.DB, milestones Milestones, logger echo.Logger) *Ingestor {
	return &Ingestor{db: db, milestones: milestones, logger: logger}
}

// Ingest records one completed tournament. Re-ingesting the same external
// ID is a no-op, so feed polling can safely overlap.
func (i *Ingestor) Ingest(result TournamentResult) error {
	if result.ExternalID == "" {
		return errors.New("tournament result without external id")
	}

	var game models.Game
	if err := i.db.Where("slug = ?", result.GameSlug).First(&game).Error; err != nil {
		return fmt.Errorf("unknown game %q: %w", result.GameSlug, err)
	}

	var tournament models.Tournament
	var scored []models.Team
	alreadyIngested := false
	err := i.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("external_id = ?", result.ExternalID).First(&tournament).Error
		if err == nil {
			alreadyIngested = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		endedAt := result.EndedAt
		tournament = models.Tournament{
			Name:       result.Name,
			GameID:     game.ID,
			ExternalID: result.ExternalID,
			EndedAt:    &endedAt,
		}
		if err := tx.Create(&tournament).Error; err != nil {
			return err
		}

		for _, m := range result.Matches {
			completedAt := m.CompletedAt
			winnerID := m.WinnerTeamID
			match := models.Match{
				TournamentID: tournament.ID,
				HomeTeamID:   m.HomeTeamID,
				AwayTeamID:   m.AwayTeamID,
				CompletedAt:  &completedAt,
			}
			if winnerID != 0 {
				match.WinnerTeamID = &winnerID
			}
			if err := tx.Create(&match).Error; err != nil {
				return err
			}
		}

		for _, p := range result.Participants {
			placement := p.FinalPlacement
			participant := models.TournamentParticipant{
				TournamentID: tournament.ID,
				TeamID:       p.TeamID,
				MatchesWon:   p.MatchesWon,
				MatchesLost:  p.MatchesLost,
			}
			if placement != 0 {
				participant.FinalPlacement = &placement
			}
			if err := tx.Create(&participant).Error; err != nil {
				return err
			}

			// Atomic in-place increments: concurrent ingests for other
			// tournaments sharing this team must not lose updates, and a
			// whole-row save here would clobber roster fields written by a
			// concurrent captaincy change.
			updates := map[string]interface{}{
				"tournaments_played": gorm.Expr("tournaments_played + 1"),
				"total_wins":         gorm.Expr("total_wins + ?", p.MatchesWon),
				"total_losses":       gorm.Expr("total_losses + ?", p.MatchesLost),
			}
			if placement == 1 {
				updates["tournaments_won"] = gorm.Expr("tournaments_won + 1")
			}
			res := tx.Model(&models.Team{}).Where("id = ?", p.TeamID).UpdateColumns(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("participant references unknown team %d: %w", p.TeamID, gorm.ErrRecordNotFound)
			}

			// Snapshot inside the transaction: the increment holds the row
			// lock, so each ingest observes its own exact counter values and
			// exact-count milestones cannot be skipped by an interleaving.
			var team models.Team
			if err := tx.First(&team, p.TeamID).Error; err != nil {
				return err
			}
			scored = append(scored, team)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if alreadyIngested {
		return nil
	}

	// Achievement checks run after commit; each award is its own statement.
	if i.milestones != nil {
		for idx, p := range result.Participants {
			team := scored[idx]
			i.milestones.CheckTournamentsPlayed(&team)
			i.milestones.CheckTournamentResult(&team, p.FinalPlacement, p.MatchesWon, p.MatchesLost)
		}
	}
	if i.logger != nil {
		i.logger.Infof("Ingested tournament %s with %d participants", result.ExternalID, len(result.Participants))
	}
	return nil
}
