package teams

import (
	"errors"
	"fmt"
	"squadforge-backend/internal/models"
	"squadforge-backend/internal/notifications"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// inviteTTL is how long a direct team invite stays actionable.
const inviteTTL = 7 * 24 * time.Hour

// MilestoneChecker is the achievement engine hook invoked after a member
// becomes active. Kept as an interface so roster tests don't need the engine.
type MilestoneChecker interface {
	CheckRosterMilestones(team *models.Team)
}

// Service owns the team membership lifecycle and captaincy succession.
// Every operation validates before writing and runs its writes inside a
// single transaction; writes to a given team are serialized through an
// in-process per-team lock.
type Service struct {
	db         *gorm.DB
	logger     echo.Logger
	notifier   notifications.Notifier
	milestones MilestoneChecker
	locks      *teamLocks
}

func NewService(db *gorm.DB, logger echo.Logger, notifier notifications.Notifier, milestones MilestoneChecker) *Service {
	return &Service{
		db:         db,
		logger:     logger,
		notifier:   notifier,
		milestones: milestones,
		locks:      newTeamLocks(),
	}
}

// CreateTeamInput carries the validated fields for a new team.
type CreateTeamInput struct {
	Name       string `json:"name" validate:"required"`
	Tag        string `json:"tag" validate:"omitempty,max=10"`
	GameID     uint   `json:"game_id" validate:"required"`
	MaxMembers int    `json:"max_members" validate:"omitempty,min=2"`
}

// CreateTeam creates a team and its captain membership atomically.
func (s *Service) CreateTeam(input CreateTeamInput, captain *models.User) (*models.Team, error) {
	if input.Name == "" || input.GameID == 0 {
		return nil, fmt.Errorf("%w: name and game are required", ErrValidation)
	}
	if input.MaxMembers == 0 {
		input.MaxMembers = 5
	}
	if input.MaxMembers < 2 {
		return nil, fmt.Errorf("%w: max_members must be at least 2", ErrValidation)
	}

	var team models.Team
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := models.ActiveMembershipForGame(tx, captain.ID, input.GameID); err == nil {
			return ErrGameConflict
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		team = models.Team{
			Name:       input.Name,
			Tag:        input.Tag,
			GameID:     input.GameID,
			CaptainID:  captain.ID,
			Status:     models.TeamStatusActive,
			MaxMembers: input.MaxMembers,
		}
		if err := tx.Create(&team).Error; err != nil {
			return fmt.Errorf("failed to create team: %w", err)
		}

		now := time.Now()
		member := models.TeamMember{
			TeamID:     team.ID,
			UserID:     captain.ID,
			Role:       models.RoleCaptain,
			Status:     models.MemberStatusActive,
			JoinedAt:   now,
			ApprovedAt: &now,
		}
		if err := tx.Create(&member).Error; err != nil {
			return fmt.Errorf("failed to create captain membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// Apply creates a pending membership application.
func (s *Service) Apply(teamID uint, user *models.User) (*models.TeamMember, error) {
	unlock := s.locks.acquire(teamID)
	defer unlock()

	var member models.TeamMember
	var team models.Team
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadTeam(tx, teamID, &team); err != nil {
			return err
		}
		if team.Status != models.TeamStatusActive || !team.IsRecruiting {
			return ErrNotRecruiting
		}

		count, err := team.ActiveMemberCount(tx)
		if err != nil {
			return err
		}
		if count >= int64(team.MaxMembers) {
			return ErrTeamFull
		}

		// One row per (team, user) whatever the status; the unique index
		// backs this up under concurrent writers.
		if _, err := models.GetMembership(tx, teamID, user.ID); err == nil {
			return ErrDuplicateApplication
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if _, err := models.ActiveMembershipForGame(tx, user.ID, team.GameID); err == nil {
			return ErrGameConflict
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		member = models.TeamMember{
			TeamID:   teamID,
			UserID:   user.ID,
			Role:     models.RoleMember,
			Status:   models.MemberStatusPending,
			JoinedAt: time.Now(),
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}

	s.notifyUserID(team.CaptainID, notifications.Notification{
		Title:         "New application",
		Message:       fmt.Sprintf("%s applied to join %s", user.GetDisplayName(), team.Name),
		Category:      "roster",
		RelatedEntity: fmt.Sprintf("team:%d", team.ID),
		ActionURL:     fmt.Sprintf("/teams/%d/applications", team.ID),
	})
	return &member, nil
}

// Approve activates a pending application. Capacity is re-checked here:
// it may have changed between apply and approve.
func (s *Service) Approve(applicationID uint, actor *models.User) (*models.TeamMember, error) {
	var member models.TeamMember
	var team models.Team
	if err := s.db.First(&member, applicationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	unlock := s.locks.acquire(member.TeamID)
	defer unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&member, applicationID).Error; err != nil {
			return ErrNotFound
		}
		if member.Status != models.MemberStatusPending {
			return fmt.Errorf("%w: application is not pending", ErrValidation)
		}
		if err := loadTeam(tx, member.TeamID, &team); err != nil {
			return err
		}
		if err := requirePrivileged(tx, team.ID, actor.ID); err != nil {
			return err
		}

		count, err := team.ActiveMemberCount(tx)
		if err != nil {
			return err
		}
		if count >= int64(team.MaxMembers) {
			return ErrTeamFull
		}
		if _, err := models.ActiveMembershipForGame(tx, member.UserID, team.GameID); err == nil {
			return ErrGameConflict
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now()
		member.Status = models.MemberStatusActive
		member.ApprovedAt = &now
		return tx.Save(&member).Error
	})
	if err != nil {
		return nil, err
	}

	if s.milestones != nil {
		s.milestones.CheckRosterMilestones(&team)
	}
	s.notifyUserID(team.CaptainID, notifications.Notification{
		Title:         "Member joined",
		Message:       fmt.Sprintf("A new member joined %s", team.Name),
		Category:      "roster",
		RelatedEntity: fmt.Sprintf("team:%d", team.ID),
	})
	s.notifyUserID(member.UserID, notifications.Notification{
		Title:         "Application approved",
		Message:       fmt.Sprintf("You are now a member of %s", team.Name),
		Category:      "roster",
		RelatedEntity: fmt.Sprintf("team:%d", team.ID),
	})
	return &member, nil
}

// Decline rejects a pending application; the row stays as a removed
// terminal record so the (team, user) uniqueness constraint keeps holding.
func (s *Service) Decline(applicationID uint, actor *models.User) error {
	var member models.TeamMember
	var team models.Team
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&member, applicationID).Error; err != nil {
			return ErrNotFound
		}
		if member.Status != models.MemberStatusPending {
			return fmt.Errorf("%w: application is not pending", ErrValidation)
		}
		if err := loadTeam(tx, member.TeamID, &team); err != nil {
			return err
		}
		if err := requirePrivileged(tx, team.ID, actor.ID); err != nil {
			return err
		}

		now := time.Now()
		member.Status = models.MemberStatusRemoved
		member.LeftAt = &now
		return tx.Save(&member).Error
	})
	if err != nil {
		return err
	}

	s.notifyUserID(member.UserID, notifications.Notification{
		Title:         "Application declined",
		Message:       fmt.Sprintf("Your application to %s was declined", team.Name),
		Category:      "roster",
		RelatedEntity: fmt.Sprintf("team:%d", team.ID),
	})
	return nil
}

// Invite creates a pending direct invite for a user.
func (s *Service) Invite(teamID uint, inviter *models.User, invitedUserID, message string) (*models.TeamInvite, error) {
	unlock := s.locks.acquire(teamID)
	defer unlock()

	var invite models.TeamInvite
	var team models.Team
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadTeam(tx, teamID, &team); err != nil {
			return err
		}
		if team.Status != models.TeamStatusActive {
			return ErrNotRecruiting
		}
		if err := requirePrivileged(tx, teamID, inviter.ID); err != nil {
			return err
		}

		if existing, err := models.GetMembership(tx, teamID, invitedUserID); err == nil {
			if existing.Status == models.MemberStatusActive || existing.Status == models.MemberStatusPending {
				return ErrAlreadyMember
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var pending int64
		if err := tx.Model(&models.TeamInvite{}).
			Where("team_id = ? AND invited_user_id = ? AND status = ?",
				teamID, invitedUserID, models.InviteStatusPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return ErrDuplicatePendingInvite
		}

		invite = models.TeamInvite{
			TeamID:        teamID,
			InvitedByID:   inviter.ID,
			InvitedUserID: invitedUserID,
			Message:       message,
			Status:        models.InviteStatusPending,
			ExpiresAt:     time.Now().Add(inviteTTL),
		}
		return tx.Create(&invite).Error
	})
	if err != nil {
		return nil, err
	}

	s.notifyUserID(invitedUserID, notifications.Notification{
		Title:         "Team invite",
		Message:       fmt.Sprintf("%s invited you to join %s", inviter.GetDisplayName(), team.Name),
		Category:      "roster",
		RelatedEntity: fmt.Sprintf("invite:%d", invite.ID),
		ActionURL:     fmt.Sprintf("/invites/%d", invite.ID),
	})
	return &invite, nil
}

// AcceptInvite activates the invited user's membership. Capacity and game
// exclusivity are re-validated: both may have changed since the invite was
// sent. A previous removed/inactive row for the pair is reactivated rather
// than duplicated.
func (s *Service) AcceptInvite(inviteID uint, user *models.User) (*models.TeamMember, error) {
	var invite models.TeamInvite
	if err := s.db.First(&invite, inviteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	unlock := s.locks.acquire(invite.TeamID)
	defer unlock()

	var member models.TeamMember
	var team models.Team
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&invite, inviteID).Error; err != nil {
			return ErrNotFound
		}
		if invite.InvitedUserID != user.ID {
			return ErrPermission
		}
		if invite.Status != models.InviteStatusPending {
			return fmt.Errorf("%w: invite is not pending", ErrValidation)
		}
		if !invite.ExpiresAt.After(time.Now()) {
			return fmt.Errorf("%w: invite has expired", ErrValidation)
		}
		if err := loadTeam(tx, invite.TeamID, &team); err != nil {
			return err
		}
		if team.Status != models.TeamStatusActive {
			return ErrNotRecruiting
		}

		count, err := team.ActiveMemberCount(tx)
		if err != nil {
			return err
		}
		if count >= int64(team.MaxMembers) {
			return ErrTeamFull
		}
		if _, err := models.ActiveMembershipForGame(tx, user.ID, team.GameID); err == nil {
			return ErrGameConflict
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now()
		if existing, err := models.GetMembership(tx, team.ID, user.ID); err == nil {
			if existing.Status == models.MemberStatusActive {
				return ErrAlreadyMember
			}
			existing.Role = models.RoleMember
			existing.Status = models.MemberStatusActive
			existing.JoinedAt = now
			existing.ApprovedAt = &now
			existing.LeftAt = nil
			if err := tx.Save(existing).Error; err != nil {
				return err
			}
			member = *existing
		} else if errors.Is(err, gorm.ErrRecordNotFound) {
			member = models.TeamMember{
				TeamID:     team.ID,
				UserID:     user.ID,
				Role:       models.RoleMember,
				Status:     models.MemberStatusActive,
				JoinedAt:   now,
				ApprovedAt: &now,
			}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
		} else {
			return err
		}

		invite.Status = models.InviteStatusAccepted
		invite.RespondedAt = &now
		if err := tx.Save(&invite).Error; err != nil {
			// The (team, user, status) unique index also covers terminal
			// rows: a re-invited user who accepted once before collides
			// with the old accepted row.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: an accepted invite already exists for this team and user", ErrValidation)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.milestones != nil {
		s.milestones.CheckRosterMilestones(&team)
	}
	s.notifyUserID(team.CaptainID, notifications.Notification{
		Title:         "Member joined",
		Message:       fmt.Sprintf("%s accepted the invite to %s", user.GetDisplayName(), team.Name),
		Category:      "roster",
		RelatedEntity: fmt.Sprintf("team:%d", team.ID),
	})
	return &member, nil
}

// DeclineInvite marks a pending invite declined.
func (s *Service) DeclineInvite(inviteID uint, user *models.User) error {
	var invite models.TeamInvite
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&invite, inviteID).Error; err != nil {
			return ErrNotFound
		}
		if invite.InvitedUserID != user.ID {
			return ErrPermission
		}
		if invite.Status != models.InviteStatusPending {
			return fmt.Errorf("%w: invite is not pending", ErrValidation)
		}
		now := time.Now()
		invite.Status = models.InviteStatusDeclined
		invite.RespondedAt = &now
		if err := tx.Save(&invite).Error; err != nil {
			// Same collision as on accept: a second declined row for the
			// pair would violate the (team, user, status) index.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: a declined invite already exists for this team and user", ErrValidation)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyUserID(invite.InvitedByID, notifications.Notification{
		Title:         "Invite declined",
		Message:       fmt.Sprintf("%s declined the team invite", user.GetDisplayName()),
		Category:      "roster",
		RelatedEntity: fmt.Sprintf("invite:%d", invite.ID),
	})
	return nil
}

// ExpireInvitesSweep marks every overdue pending invite expired. A pair that
// already holds an expired row from an earlier invite would collide with the
// (team, user, status) index, so superseded expired rows are pruned first.
// Idempotent and safe to run on any cadence; re-running changes nothing
// further.
func (s *Service) ExpireInvitesSweep(now time.Time) (int64, error) {
	var flipped int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var overdue []models.TeamInvite
		if err := tx.Where("status = ? AND expires_at <= ?", models.InviteStatusPending, now).
			Find(&overdue).Error; err != nil {
			return err
		}
		for _, invite := range overdue {
			if err := tx.Unscoped().
				Where("team_id = ? AND invited_user_id = ? AND status = ?",
					invite.TeamID, invite.InvitedUserID, models.InviteStatusExpired).
				Delete(&models.TeamInvite{}).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.TeamInvite{}).
				Where("id = ?", invite.ID).
				Update("status", models.InviteStatusExpired).Error; err != nil {
				return err
			}
			flipped++
		}
		return nil
	})
	return flipped, err
}

// ChangeRole updates a member's role. Only the captain may do this, and
// promoting to captain goes through TransferCaptaincy instead.
func (s *Service) ChangeRole(memberID uint, newRole models.MemberRole, actor *models.User) (*models.TeamMember, error) {
	if newRole == models.RoleCaptain {
		return nil, fmt.Errorf("%w: use captaincy transfer to promote a captain", ErrValidation)
	}
	switch newRole {
	case models.RoleCoCaptain, models.RoleMember, models.RoleSubstitute:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, newRole)
	}

	var member models.TeamMember
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&member, memberID).Error; err != nil {
			return ErrNotFound
		}
		actorMember, err := models.GetMembership(tx, member.TeamID, actor.ID)
		if err != nil || actorMember.Status != models.MemberStatusActive || actorMember.Role != models.RoleCaptain {
			return ErrPermission
		}
		if member.Status != models.MemberStatusActive {
			return ErrInvalidTarget
		}
		// Demoting the sole captain would leave the team captainless.
		if member.Role == models.RoleCaptain {
			return ErrInvalidTarget
		}

		member.Role = newRole
		return tx.Save(&member).Error
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// RemoveMember removes an active non-captain member from the roster.
// Captain removal goes through the succession path.
func (s *Service) RemoveMember(memberID uint, actor *models.User) error {
	var member models.TeamMember
	var team models.Team
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&member, memberID).Error; err != nil {
			return ErrNotFound
		}
		if err := loadTeam(tx, member.TeamID, &team); err != nil {
			return err
		}
		if err := requirePrivileged(tx, member.TeamID, actor.ID); err != nil {
			return err
		}
		if member.Status != models.MemberStatusActive {
			return ErrInvalidTarget
		}
		if member.Role == models.RoleCaptain {
			return ErrInvalidTarget
		}

		now := time.Now()
		member.Status = models.MemberStatusRemoved
		member.LeftAt = &now
		return tx.Save(&member).Error
	})
	if err != nil {
		return err
	}

	s.notifyUserID(member.UserID, notifications.Notification{
		Title:         "Removed from team",
		Message:       fmt.Sprintf("You were removed from %s", team.Name),
		Category:      "roster",
		Priority:      models.PriorityHigh,
		RelatedEntity: fmt.Sprintf("team:%d", team.ID),
	})
	return nil
}

func loadTeam(tx *gorm.DB, teamID uint, team *models.Team) error {
	if err := tx.First(team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// requirePrivileged checks the actor holds an active captain or co-captain
// membership on the team.
func requirePrivileged(tx *gorm.DB, teamID uint, userID string) error {
	member, err := models.GetMembership(tx, teamID, userID)
	if err != nil {
		return ErrPermission
	}
	if member.Status != models.MemberStatusActive || !member.IsPrivileged() {
		return ErrPermission
	}
	return nil
}

// notifyUserID resolves the user and fires a gateway notification. Gateway
// problems are logged and never fail the calling operation.
func (s *Service) notifyUserID(userID string, n notifications.Notification) {
	if s.notifier == nil {
		return
	}
	user, err := models.GetUserByID(s.db, userID)
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("Failed to load user %s for notification: %v", userID, err)
		}
		return
	}
	n.User = user
	s.notifier.Notify(n)
}
