package handlers

import (
	"errors"
	"net/http"
	"squadforge-backend/internal/common"
	"squadforge-backend/internal/models"
	"squadforge-backend/internal/teams"
	"strconv"

	"github.com/labstack/echo/v4"
)

// authenticatedUser returns the authenticated user from the JWT claims.
// Returns nil and false if the user is not authenticated or not found.
func authenticatedUser(c echo.Context, s *common.ServerState) (*models.User, bool) {
	email, err := s.JwtIssuer.GetUserEmail(c)
	if err != nil {
		c.Logger().Error("Failed to get user email: " + err.Error())
		return nil, false
	}

	// Fetch user from database
	user := &models.User{}
	result := s.DB.Where("email = ?", email).First(user)
	if result.Error != nil || user.ID == "" {
		return nil, false
	}

	return user, true
}

func (h *AuthHandler) getAuthenticatedUserFromJWT(c echo.Context) (*models.User, bool) {
	return authenticatedUser(c, &h.ServerState)
}

func (h *TeamHandler) getAuthenticatedUser(c echo.Context) (*models.User, bool) {
	return authenticatedUser(c, &h.ServerState)
}

func parseTeamID(c echo.Context) (uint, error) {
	return parseUintParam(c, "id")
}

func parseUintParam(c echo.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name)
	}
	return uint(id), nil
}

// rosterError maps the roster service's error kinds onto HTTP responses.
func rosterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, teams.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, teams.ErrPermission):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, teams.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, teams.ErrDuplicateApplication),
		errors.Is(err, teams.ErrDuplicatePendingInvite),
		errors.Is(err, teams.ErrAlreadyMember),
		errors.Is(err, teams.ErrGameConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, teams.ErrTeamFull),
		errors.Is(err, teams.ErrNotRecruiting),
		errors.Is(err, teams.ErrInvalidTarget):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
