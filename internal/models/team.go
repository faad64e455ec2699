package models

import (
	"errors"

	"gorm.io/gorm"
)

// Custom team status type
type TeamStatus string

const (
	TeamStatusActive    TeamStatus = "active"
	TeamStatusInactive  TeamStatus = "inactive"
	TeamStatusDisbanded TeamStatus = "disbanded"
)

// Game is the title a team competes in. Game exclusivity is enforced
// per game: one active membership per user per game.
type Game struct {
	gorm.Model
	Name string `gorm:"not null;unique" json:"name" validate:"required"`
	Slug string `gorm:"not null;unique" json:"slug" validate:"required"`
}

type Team struct {
	gorm.Model
	Name      string `gorm:"not null" json:"name" validate:"required"`
	Tag       string `gorm:"size:10" json:"tag"`
	GameID    uint   `gorm:"not null;index" json:"game_id" validate:"required"`
	Game      *Game  `json:"game,omitempty"`
	CaptainID string `gorm:"not null" json:"captain_id"`
	Captain   *User  `gorm:"foreignKey:CaptainID" json:"captain,omitempty"`

	Status           TeamStatus `gorm:"default:'active'" json:"status"`
	MaxMembers       int        `gorm:"default:5" json:"max_members" validate:"omitempty,min=2"`
	IsRecruiting     bool       `gorm:"default:true" json:"is_recruiting"`
	IsPublic         bool       `gorm:"default:true" json:"is_public"`
	RequiresApproval bool       `gorm:"default:true" json:"requires_approval"`

	// Aggregate stats, bumped by tournament result ingestion
	TournamentsPlayed int `gorm:"default:0" json:"tournaments_played"`
	TournamentsWon    int `gorm:"default:0" json:"tournaments_won"`
	TotalWins         int `gorm:"default:0" json:"total_wins"`
	TotalLosses       int `gorm:"default:0" json:"total_losses"`
}

func GetTeamByID(db *gorm.DB, id uint) (*Team, error) {
	var team Team
	result := db.Where("id = ?", id).First(&team)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errors.New("Team not found")
		}
		return nil, result.Error
	}
	return &team, nil
}

// ActiveMemberCount counts memberships that consume roster capacity.
func (t *Team) ActiveMemberCount(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&TeamMember{}).
		Where("team_id = ? AND status = ?", t.ID, MemberStatusActive).
		Count(&count).Error
	return count, err
}

// ActiveMembers returns active memberships ordered by join date.
func (t *Team) ActiveMembers(db *gorm.DB) ([]TeamMember, error) {
	var members []TeamMember
	err := db.Preload("User").
		Where("team_id = ? AND status = ?", t.ID, MemberStatusActive).
		Order("joined_at ASC").
		Find(&members).Error
	return members, err
}
