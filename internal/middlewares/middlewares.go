package middlewares

import (
	"net/http"
	"squadforge-backend/internal/common"
	"squadforge-backend/internal/models"

	"github.com/labstack/echo/v4"
)

// RequireAdmin only lets admin users through. Must run after the JWT
// middleware so the token claims are available on the context.
func RequireAdmin(s *common.ServerState) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			email, err := s.JwtIssuer.GetUserEmail(c)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}

			user, err := models.GetUserByEmail(s.DB, email)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			if !user.IsAdmin {
				return echo.NewHTTPError(http.StatusForbidden, "Admin only")
			}

			return next(c)
		}
	}
}
