package repository

import (
	"github.com/yourusername/tracker-api/internal/domain/entity"
)

// UserRepository defines persistence operations for user accounts.
type UserRepository interface {
	Create(user *entity.User) error
	// CreateWithIdentity creates a user and its first provider identity
	// atomically, so a crash cannot leave an account without a login method.
	CreateWithIdentity(user *entity.User, identity *entity.UserIdentity) error
	GetByID(id uint) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
	UpdateProfile(userID uint, updates map[string]interface{}) error
	Deactivate(userID uint) error
}
