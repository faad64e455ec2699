package models

import (
	"time"

	"gorm.io/gorm"
)

type MemberRole string

const (
	RoleCaptain    MemberRole = "captain"
	RoleCoCaptain  MemberRole = "co_captain"
	RoleMember     MemberRole = "member"
	RoleSubstitute MemberRole = "substitute"
)

type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "pending"
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
	MemberStatusRemoved  MemberStatus = "removed"
)

// TeamMember is one user's membership in one team. The composite unique
// index holds regardless of status: a user who left and re-applies reuses
// the existing row instead of inserting a second one.
type TeamMember struct {
	gorm.Model
	TeamID uint   `gorm:"not null;uniqueIndex:idx_member_team_user" json:"team_id"`
	Team   *Team  `json:"team,omitempty"`
	UserID string `gorm:"not null;uniqueIndex:idx_member_team_user;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Role   MemberRole   `gorm:"default:'member'" json:"role"`
	Status MemberStatus `gorm:"default:'pending';index" json:"status"`

	JoinedAt   time.Time  `json:"joined_at"`
	ApprovedAt *time.Time `json:"approved_at"`
	LeftAt     *time.Time `json:"left_at"`

	// Per-member match stats
	MatchesPlayed int `gorm:"default:0" json:"matches_played"`
	MatchesWon    int `gorm:"default:0" json:"matches_won"`
	MatchesLost   int `gorm:"default:0" json:"matches_lost"`
}

// IsPrivileged reports whether the membership may manage the roster.
func (m *TeamMember) IsPrivileged() bool {
	return m.Role == RoleCaptain || m.Role == RoleCoCaptain
}

// GetMembership returns the membership row for (team, user) whatever its status.
func GetMembership(db *gorm.DB, teamID uint, userID string) (*TeamMember, error) {
	var member TeamMember
	result := db.Where("team_id = ? AND user_id = ?", teamID, userID).First(&member)
	if result.Error != nil {
		return nil, result.Error
	}
	return &member, nil
}

// ActiveMembershipForGame returns the user's active membership on any team of
// the given game, or gorm.ErrRecordNotFound.
func ActiveMembershipForGame(db *gorm.DB, userID string, gameID uint) (*TeamMember, error) {
	var member TeamMember
	result := db.Joins("JOIN teams ON teams.id = team_members.team_id").
		Where("team_members.user_id = ? AND team_members.status = ? AND teams.game_id = ?",
			userID, MemberStatusActive, gameID).
		First(&member)
	if result.Error != nil {
		return nil, result.Error
	}
	return &member, nil
}
