package common

import (
	"fmt"

	"squadforge-backend/internal/achievements"
	"squadforge-backend/internal/config"
	"squadforge-backend/internal/email"
	"squadforge-backend/internal/notifications"
	"squadforge-backend/internal/teams"
	"squadforge-backend/internal/tournaments"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/wader/gormstore/v2"
	"gorm.io/gorm"
)

// GetUserChannel returns the Redis pub/sub channel carrying a user's
// realtime notifications.
func GetUserChannel(userID string) string {
	return fmt.Sprintf("channel-user-%s", userID)
}

type JwtCustomClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type JwtAuth struct {
	Secret string
	Claims JwtCustomClaims
}

type JWTIssuer interface {
	GenerateToken(email string) (string, error)
	Middleware() echo.MiddlewareFunc
	GetUserEmail(c echo.Context) (string, error)
}

type ServerState struct {
	Echo        *echo.Echo
	Config      *config.Config
	DB          *gorm.DB
	Store       *gormstore.Store
	JwtIssuer   JWTIssuer
	Redis       *redis.Client
	EmailClient email.EmailClient

	Gateway      *notifications.Gateway
	Teams        *teams.Service
	Achievements *achievements.Engine
	Ingestor     *tournaments.Ingestor
	BracketFeed  *tournaments.Client
}
