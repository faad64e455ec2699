package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"squadforge-backend/internal/config"
	"squadforge-backend/internal/email"
	"squadforge-backend/internal/messages"
	"squadforge-backend/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Delivery method names accepted in Notification.DeliveryMethods.
const (
	DeliveryInApp    = "in_app"
	DeliveryPush     = "push"
	DeliveryEmail    = "email"
	DeliveryTelegram = "telegram"
)

// Notification is one fire-and-forget message for one user.
type Notification struct {
	User            *models.User
	Title           string
	Message         string
	Category        string
	Priority        models.NotificationPriority
	RelatedEntity   string
	ActionURL       string
	DeliveryMethods []string
	Metadata        map[string]interface{}
}

// Notifier delivers user notifications. Implementations must never fail the
// caller: delivery problems are logged, not returned.
type Notifier interface {
	Notify(n Notification)
}

// Board posts entries to a team's announcement feed.
type Board interface {
	Post(teamID uint, postedByID, title, content string, priority models.AnnouncementPriority, pinned bool) error
}

// Gateway is the default Notifier: it stores an in-app inbox row, pushes to
// the user's redis channel for connected websockets, and fans out to email
// and telegram when asked to.
type Gateway struct {
	db          *gorm.DB
	redis       *redis.Client
	emailClient email.EmailClient
	cfg         *config.Config
	logger      echo.Logger
}

func NewGateway(db *gorm.DB, rdb *redis.Client, emailClient email.EmailClient, cfg *config.Config, logger echo.Logger) *Gateway {
	return &Gateway{
		db:          db,
		redis:       rdb,
		emailClient: emailClient,
		cfg:         cfg,
		logger:      logger,
	}
}

// Notify delivers one notification. Failures never propagate to the caller;
// roster and achievement writes must not roll back because a channel is down.
func (g *Gateway) Notify(n Notification) {
	if n.User == nil {
		g.logger.Error("notification without a user, dropping")
		return
	}
	if len(n.DeliveryMethods) == 0 {
		n.DeliveryMethods = []string{DeliveryInApp, DeliveryPush}
	}
	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}

	record := models.Notification{
		UserID:          n.User.ID,
		Title:           n.Title,
		Message:         n.Message,
		Category:        n.Category,
		Priority:        n.Priority,
		RelatedEntity:   n.RelatedEntity,
		ActionURL:       n.ActionURL,
		DeliveryMethods: n.DeliveryMethods,
		Metadata:        n.Metadata,
	}
	if err := g.db.Create(&record).Error; err != nil {
		g.logger.Errorf("Failed to store notification for user %s: %v", n.User.ID, err)
	}

	if slices.Contains(n.DeliveryMethods, DeliveryPush) {
		g.publish(n.User, &record)
	}

	if slices.Contains(n.DeliveryMethods, DeliveryEmail) && g.emailClient != nil {
		g.emailClient.SendAsync(n.User.Email, n.Title, "<p>"+n.Message+"</p>")
	}

	if slices.Contains(n.DeliveryMethods, DeliveryTelegram) {
		if err := SendTelegramNotification(fmt.Sprintf("%s: %s", n.Title, n.Message), g.cfg); err != nil {
			g.logger.Errorf("Failed to send telegram notification: %v", err)
		}
	}
}

// publish pushes the notification to the user's redis channel so connected
// websocket sessions receive it immediately.
func (g *Gateway) publish(user *models.User, record *models.Notification) {
	if g.redis == nil {
		return
	}
	msg := messages.NewNotificationMessage(record.Title, record.Message, string(record.Priority), record.ActionURL)
	payload, err := json.Marshal(msg)
	if err != nil {
		g.logger.Errorf("Failed to marshal notification push: %v", err)
		return
	}
	if err := g.redis.Publish(context.Background(), user.GetRedisChannel(), payload).Err(); err != nil {
		g.logger.Errorf("Failed to publish notification for user %s: %v", user.ID, err)
	}
}

// AnnouncementBoard is the default Board: it writes to the announcements
// table and pushes the entry to every active member's redis channel so
// connected websocket sessions see it immediately.
type AnnouncementBoard struct {
	db     *gorm.DB
	redis  *redis.Client
	logger echo.Logger
}

func NewAnnouncementBoard(db *gorm.DB, rdb *redis.Client, logger echo.Logger) *AnnouncementBoard {
	return &AnnouncementBoard{db: db, redis: rdb, logger: logger}
}

func (b *AnnouncementBoard) Post(teamID uint, postedByID, title, content string, priority models.AnnouncementPriority, pinned bool) error {
	announcement := models.Announcement{
		TeamID:     teamID,
		PostedByID: postedByID,
		Title:      title,
		Content:    content,
		Priority:   priority,
		Pinned:     pinned,
	}
	if err := b.db.Create(&announcement).Error; err != nil {
		return err
	}
	b.publish(&announcement)
	return nil
}

// publish fans the entry out to the team's active members. Push failures
// are logged; the announcement is already stored.
func (b *AnnouncementBoard) publish(a *models.Announcement) {
	if b.redis == nil {
		return
	}

	var userIDs []string
	if err := b.db.Model(&models.TeamMember{}).
		Where("team_id = ? AND status = ?", a.TeamID, models.MemberStatusActive).
		Pluck("user_id", &userIDs).Error; err != nil {
		b.logf("Failed to load members of team %d for announcement push: %v", a.TeamID, err)
		return
	}

	msg := messages.NewAnnouncementMessage(a.TeamID, a.Title, a.Content)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logf("Failed to marshal announcement push: %v", err)
		return
	}
	for _, userID := range userIDs {
		member := models.User{ID: userID}
		if err := b.redis.Publish(context.Background(), member.GetRedisChannel(), payload).Err(); err != nil {
			b.logf("Failed to publish announcement for user %s: %v", userID, err)
		}
	}
}

func (b *AnnouncementBoard) logf(format string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Errorf(format, args...)
	}
}
