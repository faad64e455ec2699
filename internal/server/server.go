package server

import (
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"os"
	"squadforge-backend/internal/achievements"
	"squadforge-backend/internal/common"
	"squadforge-backend/internal/config"
	"squadforge-backend/internal/email"
	"squadforge-backend/internal/handlers"
	"squadforge-backend/internal/middlewares"
	"squadforge-backend/internal/models"
	"squadforge-backend/internal/notifications"
	"squadforge-backend/internal/teams"
	"squadforge-backend/internal/tournaments"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
	resend "github.com/resend/resend-go/v2"
	"github.com/wader/gormstore/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// CustomValidator Source: https://echo.labstack.com/docs/request#validate-data
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		// Optionally, you could return the error to give each route more control over the status code
		return err
	}
	return nil
}

type SentryLogger struct {
	echo.Logger
}

func (l *SentryLogger) Error(i ...interface{}) {
	// Capture in Sentry
	if err, ok := i[0].(error); ok {
		handlers.CaptureError(err)
	} else {
		handlers.CaptureError(fmt.Errorf("%v", i...))
	}
	// Call original logger
	l.Logger.Error(i...)
}

type Server struct {
	common.ServerState

	quitSweeper chan struct{}
	quitPoller  chan struct{}
}

func New(cfg *config.Config) *Server {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}
	e.Logger = &SentryLogger{Logger: e.Logger}
	e.Logger.SetLevel(log.DEBUG)

	return &Server{
		ServerState: common.ServerState{
			Echo:   e,
			Config: cfg,
		},
	}
}

func (s *Server) Initialize() error {
	// Initialize database
	s.setupDatabase()

	s.setupRedis()

	// Initialize JWT
	s.JwtIssuer = handlers.NewJwtAuth(s.Config.Auth.SessionSecret)

	// Initialize Resend email client
	s.setupEmailClient()

	// Initialize session store
	s.setupSessionStore()

	// Wire the domain services
	s.setupServices()

	// Setup routes
	s.setupRoutes()

	// Run Migrations
	s.runMigrations()

	// Background invite expiry and bracket feed polling
	s.startInviteSweeper()
	s.startBracketPoller()

	// Setup middleware -
	// Keep last to avoid Recover middleware and panic if something goes wrong on init
	s.setupMiddleware()

	return nil
}

func (s *Server) setupDatabase() {
	dsn := s.Config.Database.DSN
	if dsn == "" {
		s.Echo.Logger.Fatal("DATABASE_DSN environment variable is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		s.Echo.Logger.Fatal(err)
	}
	s.DB = db
}

func (s *Server) setupRedis() {

	url := s.Config.Database.RedisURI

	opts, err := redis.ParseURL(url)
	if err != nil {
		panic(err)
	}

	s.Redis = redis.NewClient(opts)

	// Validate proper connection
	ctx := context.Background()
	result := s.Redis.Ping(ctx)
	if result.Err() != nil {
		panic(result.Err())
	}
}

func (s *Server) setupSessionStore() {
	store := gormstore.New(s.DB, []byte(s.Config.Auth.SessionSecret))
	store.SessionOpts.MaxAge = 60 * 60 * 24 * 30 // 30 days
	quit := make(chan struct{})
	go store.PeriodicCleanup(1*time.Hour, quit)

	// To solve securecookie: error - caused by: gob: type not registered for interface
	gob.Register(map[string]interface{}{})

	s.Store = store
}

// setupServices builds the notification gateway, the achievement engine, the
// roster service, and the tournament ingestion pipeline, in dependency order.
func (s *Server) setupServices() {
	s.Gateway = notifications.NewGateway(s.DB, s.Redis, s.EmailClient, s.Config, s.Echo.Logger)
	board := notifications.NewAnnouncementBoard(s.DB, s.Redis, s.Echo.Logger)

	feed := tournaments.NewFeed(s.DB)
	s.Achievements = achievements.NewEngine(s.DB, achievements.DefaultCatalog(), feed, s.Gateway, board, s.Echo.Logger)

	s.Teams = teams.NewService(s.DB, s.Echo.Logger, s.Gateway, s.Achievements)
	s.Ingestor = tournaments.NewIngestor(s.DB, s.Achievements, s.Echo.Logger)

	if s.Config.Brackets.FeedURL != "" {
		s.BracketFeed = tournaments.NewClient(s.Config.Brackets.FeedURL, s.Config.Brackets.APIKey)
	}
}

func (s *Server) runMigrations() {
	err := s.DB.AutoMigrate(
		&models.User{},
		&models.Game{},
		&models.Team{},
		&models.TeamMember{},
		&models.TeamInvite{},
		&models.EmailInvitation{},
		&models.TeamAchievement{},
		&models.Tournament{},
		&models.TournamentParticipant{},
		&models.Match{},
		&models.Notification{},
		&models.Announcement{},
	)
	if err != nil {
		s.Echo.Logger.Fatal(err)
	}
}

// startInviteSweeper periodically expires pending invites whose deadline has
// passed. Same shape as gormstore's PeriodicCleanup.
func (s *Server) startInviteSweeper() {
	interval := s.Config.Teams.InviteSweepInterval
	s.quitSweeper = make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.quitSweeper:
				return
			case <-ticker.C:
				expired, err := s.Teams.ExpireInvitesSweep(time.Now())
				if err != nil {
					s.Echo.Logger.Errorf("Invite sweep failed: %v", err)
					continue
				}
				if expired > 0 {
					s.Echo.Logger.Infof("Invite sweep expired %d invites", expired)
				}
			}
		}
	}()
}

// startBracketPoller pulls completed tournaments from the bracket service and
// feeds them to the ingestor. Skipped when no feed URL is configured.
func (s *Server) startBracketPoller() {
	if s.BracketFeed == nil {
		s.Echo.Logger.Warn("BRACKET_FEED_URL not configured, tournament results come in via the ingest endpoint only")
		return
	}

	interval := s.Config.Brackets.PollInterval
	s.quitPoller = make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastPoll := time.Now().Add(-interval)
		for {
			select {
			case <-s.quitPoller:
				return
			case <-ticker.C:
				polledAt := time.Now()
				results, err := s.BracketFeed.FetchCompletedSince(lastPoll)
				if err != nil {
					s.Echo.Logger.Errorf("Bracket feed poll failed: %v", err)
					continue
				}
				for _, result := range results {
					if err := s.Ingestor.Ingest(result); err != nil {
						s.Echo.Logger.Errorf("Failed to ingest tournament %s: %v", result.ExternalID, err)
					}
				}
				lastPoll = polledAt
			}
		}
	}()
}

func (s *Server) setupMiddleware() {
	s.Echo.Use(middleware.CORS())
	s.Echo.Use(session.Middleware(s.Store))
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(echoprometheus.NewMiddleware("squadforge_backend"))
}

func (s *Server) setupEmailClient() {
	apiKey := s.Config.Resend.APIKey
	if apiKey == "" {
		s.Echo.Logger.Warn("RESEND_API_KEY not configured, email notifications will be disabled")
		return
	}

	resendClient := resend.NewClient(apiKey)
	s.EmailClient = email.NewResendEmailClient(resendClient,
		s.Config.Resend.DefaultSender,
		s.Echo.Logger)
}

func (s *Server) setupRoutes() {
	handlers.SetupSentry(s.Echo, s.Config)

	// Initialize handlers
	auth := handlers.NewAuthHandler(s.ServerState)
	team := handlers.NewTeamHandler(s.ServerState)

	// API routes group
	api := s.Echo.Group("/api")

	// Public API endpoints
	api.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	api.GET("/metrics", echoprometheus.NewHandler())

	// Authentication endpoints
	api.POST("/sign-up", auth.ManualSignUp)
	api.POST("/sign-in", auth.ManualSignIn)

	// Protected API routes group
	protectedAPI := api.Group("/auth", s.JwtIssuer.Middleware())

	protectedAPI.GET("/user", auth.User)
	protectedAPI.PUT("/update-gamer-tag", auth.UpdateGamerTag)
	protectedAPI.GET("/memberships", auth.Memberships)
	protectedAPI.GET("/notifications", auth.Notifications)
	protectedAPI.POST("/notifications/:id/read", auth.MarkNotificationRead)
	protectedAPI.GET("/websocket", handlers.CreateWSHandler(&s.ServerState))

	// Teams: roster lifecycle
	protectedAPI.POST("/teams", team.CreateTeam)
	protectedAPI.GET("/teams/:id", team.Team)
	protectedAPI.GET("/teams/:id/online", auth.OnlineTeammates)
	protectedAPI.POST("/teams/:id/applications", team.Apply)
	protectedAPI.POST("/applications/:id/approve", team.ApproveApplication)
	protectedAPI.POST("/applications/:id/decline", team.DeclineApplication)
	protectedAPI.GET("/teams/:id/invites", team.Invites)
	protectedAPI.POST("/teams/:id/invites", team.Invite)
	protectedAPI.POST("/invites/:id/accept", team.AcceptInvite)
	protectedAPI.POST("/invites/:id/decline", team.DeclineInvite)
	protectedAPI.PUT("/members/:id/role", team.ChangeRole)
	protectedAPI.DELETE("/members/:id", team.RemoveMember)

	// Teams: departure and captaincy
	protectedAPI.POST("/teams/:id/leave", team.Leave)
	protectedAPI.POST("/teams/:id/disband", team.Disband)
	protectedAPI.POST("/teams/:id/transfer-captaincy", team.TransferCaptaincy)

	// Teams: feeds and achievements
	protectedAPI.GET("/teams/:id/achievements", team.Achievements)
	protectedAPI.GET("/teams/:id/announcements", team.Announcements)
	protectedAPI.POST("/teams/:id/announcements", team.PostAnnouncement)
	protectedAPI.POST("/teams/:id/email-invites", team.SendEmailInvites)

	// Tournament results push from the bracket service
	protectedAPI.POST("/tournaments/ingest", team.IngestTournament, middlewares.RequireAdmin(&s.ServerState))
	protectedAPI.POST("/tournaments/:external_id/sync", team.SyncTournament, middlewares.RequireAdmin(&s.ServerState))

	// Debug endpoints - only enabled when ENABLE_DEBUG_ENDPOINTS=true
	if s.Config.Server.Debug {
		api.GET("/jwt-debug", func(c echo.Context) error {
			email := c.QueryParam("email")
			token, err := s.JwtIssuer.GenerateToken(email)
			if err != nil {
				return c.String(http.StatusInternalServerError, "Failed to generate token")
			}
			return c.JSON(http.StatusOK, map[string]string{
				"email": email,
				"token": token,
			})
		})
	}
}

func (s *Server) Start() error {
	serverURL := s.Config.Server.Host + ":" + s.Config.Server.Port

	if s.Config.Server.TLS.Enabled {
		if _, err := os.Stat(s.Config.Server.TLS.CertFile); os.IsNotExist(err) {
			s.Echo.Logger.Warn("TLS certificate file not found, falling back to HTTP")
			return s.Echo.Start(serverURL)
		}
		if _, err := os.Stat(s.Config.Server.TLS.KeyFile); os.IsNotExist(err) {
			s.Echo.Logger.Warn("TLS key file not found, falling back to HTTP")
			return s.Echo.Start(serverURL)
		}
		return s.Echo.StartTLS(serverURL, s.Config.Server.TLS.CertFile, s.Config.Server.TLS.KeyFile)
	}

	return s.Echo.Start(serverURL)
}
