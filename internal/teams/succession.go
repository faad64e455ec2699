package teams

import (
	"fmt"
	"sort"
	"squadforge-backend/internal/models"
	"squadforge-backend/internal/notifications"
	"time"

	"gorm.io/gorm"
)

// successionPriority orders successor candidates: co-captains first, then
// everyone else, earliest join date breaking ties.
func successionPriority(role models.MemberRole) int {
	if role == models.RoleCoCaptain {
		return 0
	}
	return 1
}

// PickSuccessor returns the candidate minimizing (priority(role), joined_at),
// or nil for an empty candidate set.
func PickSuccessor(candidates []models.TeamMember) *models.TeamMember {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]models.TeamMember, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := successionPriority(sorted[i].Role), successionPriority(sorted[j].Role)
		if pi != pj {
			return pi < pj
		}
		return sorted[i].JoinedAt.Before(sorted[j].JoinedAt)
	})
	return &sorted[0]
}

// Leave handles a member leaving the team. A departing captain triggers
// succession; a departing sole member disbands the team. After every
// successful transition the team has exactly one active captain, or zero
// when disbanded.
func (s *Service) Leave(teamID uint, user *models.User) error {
	unlock := s.locks.acquire(teamID)
	defer unlock()

	var team models.Team
	var successor *models.TeamMember
	disbanded := false

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadTeam(tx, teamID, &team); err != nil {
			return err
		}
		leaving, err := models.GetMembership(tx, teamID, user.ID)
		if err != nil {
			return ErrNotFound
		}
		if leaving.Status != models.MemberStatusActive {
			return ErrInvalidTarget
		}

		now := time.Now()

		if leaving.Role == models.RoleCaptain {
			active, err := team.ActiveMembers(tx)
			if err != nil {
				return err
			}
			candidates := make([]models.TeamMember, 0, len(active))
			for _, m := range active {
				if m.ID != leaving.ID {
					candidates = append(candidates, m)
				}
			}

			if len(candidates) == 0 {
				// Last member out: the captain leaving alone disbands the team.
				team.Status = models.TeamStatusDisbanded
				if err := tx.Save(&team).Error; err != nil {
					return err
				}
				disbanded = true
			} else {
				successor = PickSuccessor(candidates)
				successor.Role = models.RoleCaptain
				if err := tx.Save(successor).Error; err != nil {
					return err
				}
				team.CaptainID = successor.UserID
				if err := tx.Save(&team).Error; err != nil {
					return err
				}
			}
		}

		leaving.Status = models.MemberStatusInactive
		leaving.LeftAt = &now
		return tx.Save(leaving).Error
	})
	if err != nil {
		return err
	}

	if successor != nil {
		s.notifyUserID(successor.UserID, notifications.Notification{
			Title:         "You are the new captain",
			Message:       fmt.Sprintf("You were promoted to captain of %s", team.Name),
			Category:      "roster",
			Priority:      models.PriorityHigh,
			RelatedEntity: fmt.Sprintf("team:%d", team.ID),
		})
	}
	if disbanded && s.logger != nil {
		s.logger.Infof("Team %d disbanded after its last member left", team.ID)
	}
	return nil
}

// Disband ends the team: the team moves to its terminal status and every
// active membership becomes inactive. Pending, inactive and removed rows
// are untouched.
func (s *Service) Disband(teamID uint, actor *models.User) error {
	unlock := s.locks.acquire(teamID)
	defer unlock()

	var team models.Team
	var active []models.TeamMember
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadTeam(tx, teamID, &team); err != nil {
			return err
		}
		actorMember, err := models.GetMembership(tx, teamID, actor.ID)
		if err != nil || actorMember.Status != models.MemberStatusActive || actorMember.Role != models.RoleCaptain {
			return ErrPermission
		}

		active, err = team.ActiveMembers(tx)
		if err != nil {
			return err
		}

		team.Status = models.TeamStatusDisbanded
		if err := tx.Save(&team).Error; err != nil {
			return err
		}

		return tx.Model(&models.TeamMember{}).
			Where("team_id = ? AND status = ?", teamID, models.MemberStatusActive).
			Updates(map[string]interface{}{
				"status":  models.MemberStatusInactive,
				"left_at": time.Now(),
			}).Error
	})
	if err != nil {
		return err
	}

	for _, m := range active {
		s.notifyUserID(m.UserID, notifications.Notification{
			Title:         "Team disbanded",
			Message:       fmt.Sprintf("%s has been disbanded", team.Name),
			Category:      "roster",
			Priority:      models.PriorityHigh,
			RelatedEntity: fmt.Sprintf("team:%d", team.ID),
		})
	}
	return nil
}

// TransferCaptaincy demotes the current captain to member and promotes the
// target in one atomic unit; no concurrent reader may observe two captains
// or none.
func (s *Service) TransferCaptaincy(teamID uint, actor *models.User, targetMemberID uint, notifyTeam bool) error {
	unlock := s.locks.acquire(teamID)
	defer unlock()

	var team models.Team
	var target models.TeamMember
	var active []models.TeamMember
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadTeam(tx, teamID, &team); err != nil {
			return err
		}
		actorMember, err := models.GetMembership(tx, teamID, actor.ID)
		if err != nil || actorMember.Status != models.MemberStatusActive || actorMember.Role != models.RoleCaptain {
			return ErrPermission
		}
		if err := tx.First(&target, targetMemberID).Error; err != nil {
			return ErrNotFound
		}
		if target.TeamID != teamID || target.Status != models.MemberStatusActive {
			return ErrInvalidTarget
		}
		if target.ID == actorMember.ID {
			return fmt.Errorf("%w: captain already holds the captaincy", ErrValidation)
		}

		actorMember.Role = models.RoleMember
		if err := tx.Save(actorMember).Error; err != nil {
			return err
		}
		target.Role = models.RoleCaptain
		if err := tx.Save(&target).Error; err != nil {
			return err
		}
		team.CaptainID = target.UserID
		if err := tx.Save(&team).Error; err != nil {
			return err
		}

		if notifyTeam {
			active, err = team.ActiveMembers(tx)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyUserID(target.UserID, notifications.Notification{
		Title:         "You are the new captain",
		Message:       fmt.Sprintf("%s handed you the captaincy of %s", actor.GetDisplayName(), team.Name),
		Category:      "roster",
		Priority:      models.PriorityHigh,
		RelatedEntity: fmt.Sprintf("team:%d", team.ID),
	})
	if notifyTeam {
		for _, m := range active {
			if m.UserID == target.UserID {
				continue
			}
			s.notifyUserID(m.UserID, notifications.Notification{
				Title:         "New captain",
				Message:       fmt.Sprintf("%s has a new captain", team.Name),
				Category:      "roster",
				RelatedEntity: fmt.Sprintf("team:%d", team.ID),
			})
		}
	}
	return nil
}
