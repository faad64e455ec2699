package models

import (
	"time"

	"gorm.io/gorm"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// Notification is one in-app inbox entry for one user. Delivery over other
// channels (email, telegram, websocket push) is handled by the gateway and
// recorded in DeliveryMethods.
type Notification struct {
	gorm.Model
	UserID string `gorm:"not null;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"-"`

	Title    string               `gorm:"not null" json:"title"`
	Message  string               `json:"message"`
	Category string               `gorm:"index" json:"category"`
	Priority NotificationPriority `gorm:"default:'normal'" json:"priority"`

	RelatedEntity   string                 `json:"related_entity"`
	ActionURL       string                 `json:"action_url"`
	DeliveryMethods []string               `gorm:"serializer:json" json:"delivery_methods"`
	Metadata        map[string]interface{} `gorm:"serializer:json" json:"metadata"`

	ReadAt *time.Time `json:"read_at"`
}

type AnnouncementPriority string

const (
	AnnouncementNormal    AnnouncementPriority = "normal"
	AnnouncementImportant AnnouncementPriority = "important"
)

// Announcement is one entry on a team's activity feed.
type Announcement struct {
	gorm.Model
	TeamID     uint   `gorm:"not null;index" json:"team_id"`
	Team       *Team  `json:"-"`
	PostedByID string `gorm:"not null" json:"posted_by_id"`
	PostedBy   *User  `gorm:"foreignKey:PostedByID" json:"posted_by,omitempty"`

	Title    string               `gorm:"not null" json:"title"`
	Content  string               `json:"content"`
	Priority AnnouncementPriority `gorm:"default:'normal'" json:"priority"`
	Pinned   bool                 `gorm:"default:false" json:"pinned"`
}

// MarkRead stamps the notification as read. Already-read rows keep their
// original timestamp.
func (n *Notification) MarkRead(db *gorm.DB) error {
	if n.ReadAt != nil {
		return nil
	}
	now := time.Now()
	n.ReadAt = &now
	return db.Model(n).Update("read_at", n.ReadAt).Error
}

// UnreadNotifications returns the user's unread inbox entries, newest first.
func UnreadNotifications(db *gorm.DB, userID string) ([]Notification, error) {
	var notifications []Notification
	err := db.Where("user_id = ? AND read_at IS NULL", userID).
		Order("created_at DESC").
		Find(&notifications).Error
	return notifications, err
}

// AnnouncementsForTeam returns the team's feed, pinned entries first, then
// newest first.
func AnnouncementsForTeam(db *gorm.DB, teamID uint, limit int) ([]Announcement, error) {
	var announcements []Announcement
	err := db.Preload("PostedBy").
		Where("team_id = ?", teamID).
		Order("pinned DESC, created_at DESC").
		Limit(limit).
		Find(&announcements).Error
	return announcements, err
}
