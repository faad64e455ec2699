package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"squadforge-backend/internal/common"
	"squadforge-backend/internal/models"
	"squadforge-backend/internal/notifications"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

type AuthHandler struct {
	common.ServerState
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func NewAuthHandler(state common.ServerState) *AuthHandler {
	return &AuthHandler{ServerState: state}
}

func (h *AuthHandler) ManualSignUp(c echo.Context) error {
	c.Logger().Info("Received manual sign-up request")

	u := new(models.User)
	if err := c.Bind(u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := c.Validate(u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result := h.DB.Create(u)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return echo.NewHTTPError(http.StatusConflict, "user with this email already exists")
	}

	if result.Error != nil {
		c.Logger().Errorf("Failed to create user: %v", result.Error)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create user")
	}

	// Send welcome email after successful creation
	if h.EmailClient != nil {
		h.EmailClient.SendWelcomeEmail(u)
	}

	// Create a JWT token
	token, err := h.JwtIssuer.GenerateToken(u.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	_ = notifications.SendTelegramNotification(fmt.Sprintf("New sign-up: %s", u.ID), h.Config)

	return c.JSON(http.StatusCreated, map[string]string{"token": token})
}

func (h *AuthHandler) ManualSignIn(c echo.Context) error {
	c.Logger().Info("Received manual sign-in request")
	req := &SignInRequest{}

	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	u := &models.User{}
	result := h.DB.Where("email = ?", req.Email).First(u)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}

	if !u.CheckPassword(req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	}

	// Create a JWT token
	token, err := h.JwtIssuer.GenerateToken(u.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	_ = notifications.SendTelegramNotification(fmt.Sprintf("New sign-in: %s", u.ID), h.Config)

	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *AuthHandler) User(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUserFromJWT(c)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) UpdateGamerTag(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUserFromJWT(c)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized")
	}

	type UpdateRequest struct {
		GamerTag string `json:"gamer_tag" validate:"required"`
	}

	req := new(UpdateRequest)
	if err := c.Bind(req); err != nil {
		c.Logger().Error("Failed to bind request:", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user.GamerTag = req.GamerTag

	if err := h.DB.Save(user).Error; err != nil {
		c.Logger().Error("Failed to save to db:", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update user")
	}

	return c.JSON(http.StatusOK, user)
}

// Memberships lists the authenticated user's membership rows across teams,
// any status, with the team preloaded.
func (h *AuthHandler) Memberships(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUserFromJWT(c)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	memberships, err := user.Memberships(h.DB)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load memberships")
	}

	return c.JSON(http.StatusOK, memberships)
}

// Notifications returns the user's unread in-app notifications.
func (h *AuthHandler) Notifications(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUserFromJWT(c)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	unread, err := models.UnreadNotifications(h.DB, user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load notifications")
	}

	return c.JSON(http.StatusOK, unread)
}

// MarkNotificationRead stamps a single notification as read. The row must
// belong to the authenticated user.
func (h *AuthHandler) MarkNotificationRead(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUserFromJWT(c)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	var notification models.Notification
	result := h.DB.Where("id = ? AND user_id = ?", c.Param("id"), user.ID).First(&notification)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	}
	if result.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load notification")
	}

	if err := notification.MarkRead(h.DB); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update notification")
	}

	return c.NoContent(http.StatusOK)
}

// OnlineTeammates reports which active members of the team currently hold an
// open notification stream, based on their Redis pub/sub channels.
func (h *AuthHandler) OnlineTeammates(c echo.Context) error {
	user, isAuthenticated := h.getAuthenticatedUserFromJWT(c)
	if !isAuthenticated {
		return c.String(http.StatusUnauthorized, "Unauthorized request")
	}

	teamID, err := parseTeamID(c)
	if err != nil {
		return err
	}

	if _, err := models.GetMembership(h.DB, teamID, user.ID); err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "Not a member of this team")
	}

	team, err := models.GetTeamByID(h.DB, teamID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Team not found")
	}

	members, err := team.ActiveMembers(h.DB)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load members")
	}

	type presence struct {
		UserID   string `json:"user_id"`
		GamerTag string `json:"gamer_tag"`
		Online   bool   `json:"online"`
	}

	ctx := context.Background()
	out := make([]presence, 0, len(members))
	for _, m := range members {
		p := presence{UserID: m.UserID}
		if m.User != nil {
			p.GamerTag = m.User.GamerTag
		}
		channels, err := h.Redis.PubSubChannels(ctx, common.GetUserChannel(m.UserID)).Result()
		if err != nil {
			c.Logger().Error("Error checking Redis channels:", err)
		} else {
			p.Online = len(channels) > 0
		}
		out = append(out, p)
	}

	return c.JSON(http.StatusOK, out)
}
