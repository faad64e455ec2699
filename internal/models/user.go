package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	ID             string    `json:"id" gorm:"unique;not null"` // Standard field for the primary key
	GamerTag       string    `gorm:"not null" json:"gamer_tag" validate:"required"`
	Email          string    `gorm:"not null;unique" json:"email" validate:"required,email"`
	IsAdmin        bool      `gorm:"default:false" json:"is_admin"`
	Password       string    `gorm:"-" json:"password" validate:"required,min=8"`
	HashedPassword string    `json:"-"`
	AvatarURL      string    `json:"avatar_url"`
	CreatedAt      time.Time `json:"created_at"` // Automatically managed by GORM for creation time
	UpdatedAt      time.Time `json:"updated_at"` // Automatically managed by GORM for update time
	// General user metadata for onboarding, preferences, etc.
	Metadata map[string]interface{} `gorm:"serializer:json" json:"metadata"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	// Using uuid v7 to be indexable with B-tree
	uuidV7, err := uuid.NewV7()
	if err != nil {
		return err
	}
	u.ID = uuidV7.String()

	// Hash password if it's set
	if u.Password != "" {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u.HashedPassword = string(hashedPassword)
		// Clear the plain text password
		u.Password = ""
	}

	return
}

func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password))
	return err == nil
}

func GetUserByEmail(db *gorm.DB, email string) (*User, error) {
	var user User
	result := db.Where("email = ?", email).First(&user)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errors.New("User not found")
		}
		return nil, result.Error
	}
	return &user, nil
}

func GetUserByID(db *gorm.DB, id string) (*User, error) {
	var user *User
	result := db.Where("id = ?", id).First(&user)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, errors.New("User not found")
		}
		return nil, result.Error
	}
	return user, nil
}

func (u *User) GetRedisChannel() string {
	return fmt.Sprintf("channel-user-%s", u.ID)
}

// Memberships returns all of the user's membership rows, any status.
func (u *User) Memberships(db *gorm.DB) ([]TeamMember, error) {
	var memberships []TeamMember
	err := db.Preload("Team").Where("user_id = ?", u.ID).Find(&memberships).Error
	return memberships, err
}

// GetDisplayName returns the user's display name
func (u *User) GetDisplayName() string {
	return u.GamerTag
}
