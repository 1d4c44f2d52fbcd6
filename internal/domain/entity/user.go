package entity

import (
	"strings"
	"time"
)

// User represents an account in the system. Accounts are created only
// through an external identity provider, so there is no local password.
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Email         string     `gorm:"size:100;not null;uniqueIndex" json:"email"`
	DisplayName   string     `gorm:"size:100;not null;default:''" json:"display_name"`
	AvatarURL     string     `gorm:"size:255;not null;default:''" json:"avatar_url"`
	LastLoginAt   *time.Time `gorm:"type:timestamp" json:"last_login_at,omitempty"`
	DeactivatedAt *time.Time `gorm:"type:timestamp" json:"deactivated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the account can still authenticate.
func (u *User) IsActive() bool {
	return u.DeactivatedAt == nil
}

// NormalizeEmail lowercases and trims an email address. All email lookups
// and writes go through this so the unique index is case-insensitive in
// practice.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (User) TableName() string {
	return "users"
}
