package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"squadforge-backend/internal/common"
	"squadforge-backend/internal/models"
	"squadforge-backend/internal/notifications"
	"squadforge-backend/internal/teams"
	"squadforge-backend/internal/tournaments"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// TeamHandler exposes the roster lifecycle, captaincy succession, and the
// per-team feeds over HTTP. All business rules live in the teams service;
// the handler only binds, authenticates, and maps errors to status codes.
type TeamHandler struct {
	common.ServerState
}

func NewTeamHandler(state common.ServerState) *TeamHandler {
	return &TeamHandler{ServerState: state}
}

func (h *TeamHandler) CreateTeam(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	input := teams.CreateTeamInput{}
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	team, err := h.Teams.CreateTeam(input, user)
	if err != nil {
		return rosterError(err)
	}
	return c.JSON(http.StatusCreated, team)
}

// Team returns one team with its active roster.
func (h *TeamHandler) Team(c echo.Context) error {
	teamID, err := parseTeamID(c)
	if err != nil {
		return err
	}

	team, err := models.GetTeamByID(h.DB, teamID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Team not found")
	}

	members, err := team.ActiveMembers(h.DB)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load roster")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"team":    team,
		"members": members,
	})
}

func (h *TeamHandler) Apply(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	teamID, err := parseTeamID(c)
	if err != nil {
		return err
	}

	member, err := h.Teams.Apply(teamID, user)
	if err != nil {
		return rosterError(err)
	}
	return c.JSON(http.StatusCreated, member)
}

func (h *TeamHandler) ApproveApplication(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	applicationID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	member, err := h.Teams.Approve(applicationID, user)
	if err != nil {
		return rosterError(err)
	}
	return c.JSON(http.StatusOK, member)
}

func (h *TeamHandler) DeclineApplication(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	applicationID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.Teams.Decline(applicationID, user); err != nil {
		return rosterError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *TeamHandler) Invite(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	teamID, err := parseTeamID(c)
	if err != nil {
		return err
	}

	type InviteRequest struct {
		UserID  string `json:"user_id" validate:"required"`
		Message string `json:"message"`
	}
	req := new(InviteRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	invite, err := h.Teams.Invite(teamID, user, req.UserID, req.Message)
	if err != nil {
		return rosterError(err)
	}
	return c.JSON(http.StatusCreated, invite)
}

// Invites lists the team's invites that are still actionable: pending and
// not yet past their expiry, even when the sweep has not run yet.
func (h *TeamHandler) Invites(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	teamID, err := parseTeamID(c)
	if err != nil {
		return err
	}

	membership, err := models.GetMembership(h.DB, teamID, user.ID)
	if err != nil || membership.Status != models.MemberStatusActive || !membership.IsPrivileged() {
		return echo.NewHTTPError(http.StatusForbidden, "Only the captain or a co-captain can view invites")
	}

	invites, err := models.ActiveInvitesForTeam(h.DB, teamID, time.Now())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load invites")
	}

	return c.JSON(http.StatusOK, invites)
}

func (h *TeamHandler) AcceptInvite(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	inviteID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	member, err := h.Teams.AcceptInvite(inviteID, user)
	if err != nil {
		return rosterError(err)
	}
	return c.JSON(http.StatusOK, member)
}

func (h *TeamHandler) DeclineInvite(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	inviteID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.Teams.DeclineInvite(inviteID, user); err != nil {
		return rosterError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *TeamHandler) ChangeRole(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	memberID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	type RoleRequest struct {
		Role models.MemberRole `json:"role" validate:"required,oneof=co_captain member substitute"`
	}
	req := new(RoleRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	member, err := h.Teams.ChangeRole(memberID, req.Role, user)
	if err != nil {
		return rosterError(err)
	}
	return c.JSON(http.StatusOK, member)
}

func (h *TeamHandler) RemoveMember(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	memberID, err := parseUintParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.Teams.RemoveMember(memberID, user); err != nil {
		return rosterError(err)
	}
	return c.NoContent(http.StatusOK)
}

// Leave handles voluntary departure, including captain succession or
// disbanding when the captain is the last active member.
func (h *TeamHandler) Leave(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	teamID, err := parseTeamID(c)
	if err != nil {
		return err
	}

	if err := h.Teams.Leave(teamID, user); err != nil {
		return rosterError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *TeamHandler) Disband(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	teamID, err := parseTeamID(c)
	if err != nil {
		return err
	}

	if err := h.Teams.Disband(teamID, user); err != nil {
		return rosterError(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *TeamHandler) TransferCaptaincy(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	teamID, err := parseTeamID(c)
	if err != nil {
		return err
	}

	type TransferRequest struct {
		MemberID   uint `json:"member_id" validate:"required"`
		NotifyTeam bool `json:"notify_team"`
	}
	req := new(TransferRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.Teams.TransferCaptaincy(teamID, user, req.MemberID, req.NotifyTeam); err != nil {
		return rosterError(err)
	}
	return c.NoContent(http.StatusOK)
}

// Achievements lists everything the team has earned, newest first.
func (h *TeamHandler) Achievements(c echo.Context) error {
	teamID, err := parseTeamID(c)
	if err != nil {
		return err
	}

	var achievements []models.TeamAchievement
	if err := h.DB.Where("team_id = ?", teamID).
		Order("earned_at DESC").
		Find(&achievements).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load achievements")
	}

	return c.JSON(http.StatusOK, achievements)
}

// Announcements returns the team's feed, pinned first.
func (h *TeamHandler) Announcements(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	teamID, err := parseTeamID(c)
	if err != nil {
		return err
	}

	if _, err := models.GetMembership(h.DB, teamID, user.ID); err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "Not a member of this team")
	}

	announcements, err := models.AnnouncementsForTeam(h.DB, teamID, 50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load announcements")
	}

	return c.JSON(http.StatusOK, announcements)
}

// PostAnnouncement puts a new entry on the team feed. Captains and
// co-captains only.
func (h *TeamHandler) PostAnnouncement(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	teamID, err := parseTeamID(c)
	if err != nil {
		return err
	}

	membership, err := models.GetMembership(h.DB, teamID, user.ID)
	if err != nil || membership.Status != models.MemberStatusActive || !membership.IsPrivileged() {
		return echo.NewHTTPError(http.StatusForbidden, "Only the captain or a co-captain can post announcements")
	}

	type AnnouncementRequest struct {
		Title    string                      `json:"title" validate:"required"`
		Content  string                      `json:"content"`
		Priority models.AnnouncementPriority `json:"priority" validate:"omitempty,oneof=normal important"`
		Pinned   bool                        `json:"pinned"`
	}
	req := new(AnnouncementRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Priority == "" {
		req.Priority = models.AnnouncementNormal
	}

	board := notifications.NewAnnouncementBoard(h.DB, h.Redis, c.Logger())
	if err := board.Post(teamID, user.ID, req.Title, req.Content, req.Priority, req.Pinned); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to post announcement")
	}
	return c.NoContent(http.StatusCreated)
}

// SendEmailInvites emails join links for the team. Per-address sends are
// throttled to one per 30 minutes and each user to 50 invites a day.
func (h *TeamHandler) SendEmailInvites(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUser(c)
	if !isAuthenticated {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}

	teamID, err := parseTeamID(c)
	if err != nil {
		return err
	}

	membership, err := models.GetMembership(h.DB, teamID, user.ID)
	if err != nil || membership.Status != models.MemberStatusActive || !membership.IsPrivileged() {
		return echo.NewHTTPError(http.StatusForbidden, "Only the captain or a co-captain can send invites")
	}

	var team models.Team
	if err := h.DB.Select("name").Where("id = ?", teamID).First(&team).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get team information")
	}

	type InviteRequest struct {
		Invitees []string `json:"invitees" validate:"required,dive,email"`
	}

	req := new(InviteRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid email addresses")
	}

	baseURL := "https://" + h.Config.Server.DeployDomain
	inviteLink := fmt.Sprintf("%s/teams/%d/join", baseURL, teamID)

	// Limit also the user to 50 invites per day
	// just to avoid abuse of our service
	var invitesToday int64
	h.DB.Model(&models.EmailInvitation{}).Where("sent_by = ? AND sent_at > ?", user.ID, time.Now().AddDate(0, 0, -1)).Count(&invitesToday)

	c.Echo().Logger.Infof("Invites today by user %s: %d", user.ID, invitesToday)

	if invitesToday >= 50 {
		return echo.NewHTTPError(http.StatusTooManyRequests, "You have reached the maximum number of invites per day")
	}

	for idx, email := range req.Invitees {
		if (idx + int(invitesToday)) >= 50 {
			c.Echo().Logger.Info("Skipping inviting more emails because of rate limit for user:", user.ID)
			break
		}
		// Check if we can send an invitation to this email (rate limit check)
		if !models.CanSendInvite(h.DB, email) {
			// Skip this email silently
			c.Echo().Logger.Info("Skipping inviting email:", email)
			continue
		}

		// Record the invitation in the database
		emailInvite := models.EmailInvitation{
			TeamID: int(teamID),
			Email:  email,
			SentAt: time.Now(),
			SentBy: user.ID,
		}
		h.DB.Create(&emailInvite)

		// Send the email if email client is available
		if h.EmailClient != nil {
			h.EmailClient.SendTeamInvitationEmail(user.GamerTag, team.Name, inviteLink, email)
		}
	}

	return c.NoContent(http.StatusOK)
}

// IngestTournament accepts a completed tournament payload from the bracket
// service. The admin middleware gates this route; re-posting the same
// external ID is a no-op.
func (h *TeamHandler) IngestTournament(c echo.Context) error {
	result, err := tournaments.ParseResult(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.Ingestor.Ingest(result); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

// SyncTournament pulls one tournament from the bracket service by its
// external ID and ingests it. Lets an admin backfill a result the poller
// missed without waiting for the next push.
func (h *TeamHandler) SyncTournament(c echo.Context) error {
	if h.BracketFeed == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Bracket feed is not configured")
	}

	externalID := c.Param("external_id")
	if externalID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing external_id")
	}

	result, err := h.BracketFeed.FetchTournament(externalID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	if err := h.Ingestor.Ingest(*result); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}
