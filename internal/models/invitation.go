package models

import (
	"time"

	"gorm.io/gorm"
)

type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusDeclined InviteStatus = "declined"
	InviteStatusExpired  InviteStatus = "expired"
)

// TeamInvite is a direct invitation for a user to join a team.
// The composite unique index allows at most one row per
// (team, invited user, status) - in particular a single pending invite.
type TeamInvite struct {
	gorm.Model
	TeamID        uint   `gorm:"not null;uniqueIndex:idx_invite_team_user_status" json:"team_id"`
	Team          *Team  `json:"team,omitempty"`
	InvitedByID   string `gorm:"not null" json:"invited_by_id"`
	InvitedBy     *User  `gorm:"foreignKey:InvitedByID" json:"invited_by,omitempty"`
	InvitedUserID string `gorm:"not null;uniqueIndex:idx_invite_team_user_status" json:"invited_user_id"`
	InvitedUser   *User  `gorm:"foreignKey:InvitedUserID" json:"invited_user,omitempty"`

	Message     string       `json:"message"`
	Status      InviteStatus `gorm:"default:'pending';uniqueIndex:idx_invite_team_user_status" json:"status"`
	ExpiresAt   time.Time    `gorm:"index" json:"expires_at"`
	RespondedAt *time.Time   `json:"responded_at"`
}

// ActiveInvitesForTeam lists invites that are still actionable: pending and
// not past their expiry, even if the sweep has not run yet.
func ActiveInvitesForTeam(db *gorm.DB, teamID uint, now time.Time) ([]TeamInvite, error) {
	var invites []TeamInvite
	err := db.Where("team_id = ? AND status = ? AND expires_at > ?",
		teamID, InviteStatusPending, now).
		Find(&invites).Error
	return invites, err
}

// EmailInvitation represents an email invitation sent to join a team
type EmailInvitation struct {
	gorm.Model
	TeamID int       `json:"team_id"`
	Team   Team      `gorm:"foreignKey:TeamID" json:"-"`
	Email  string    `json:"email" gorm:"index"`
	SentAt time.Time `json:"sent_at"`
	SentBy string    `json:"sent_by"` // User ID who sent the invitation
}

// CanSendInvite checks if an invite can be sent to this email
// Returns true if no invite was sent in the last 30 minutes
func CanSendInvite(db *gorm.DB, email string) bool {
	var invitation EmailInvitation

	// Look for the most recent invitation sent to this email
	result := db.Where("email = ?", email).
		Order("sent_at DESC").
		First(&invitation)

	// If no invitation found, we can send one
	if result.Error == gorm.ErrRecordNotFound {
		return true
	}

	// Check if the last invitation was sent more than 30 minutes ago
	return time.Since(invitation.SentAt) > 30*time.Minute
}
