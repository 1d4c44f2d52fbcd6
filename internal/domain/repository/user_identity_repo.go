package repository

import (
	"github.com/yourusername/tracker-api/internal/domain/entity"
)

// UserIdentityRepository defines persistence operations for provider links.
type UserIdentityRepository interface {
	Create(identity *entity.UserIdentity) error
	GetByProviderSub(provider, providerSub string) (*entity.UserIdentity, error)
	GetByUserAndProvider(userID uint, provider string) (*entity.UserIdentity, error)
	DeleteByUserID(userID uint) error
}
