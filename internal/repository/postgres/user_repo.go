package postgres

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/tracker-api/internal/domain/entity"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
)

// UserRepo implements repository.UserRepository using PostgreSQL and GORM.
type UserRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(user *entity.User) error {
	user.Email = entity.NormalizeEmail(user.Email)
	return r.db.Create(user).Error
}

// CreateWithIdentity creates the user and its provider identity in a single
// transaction. GORM fills user.ID before the identity insert.
func (r *UserRepo) CreateWithIdentity(user *entity.User, identity *entity.UserIdentity) error {
	user.Email = entity.NormalizeEmail(user.Email)
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		identity.UserID = user.ID
		if err := tx.Create(identity).Error; err != nil {
			return fmt.Errorf("failed to create identity: %w", err)
		}
		return nil
	})
}

func (r *UserRepo) GetByID(id uint) (*entity.User, error) {
	var user entity.User
	err := r.db.First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepo) GetByEmail(email string) (*entity.User, error) {
	var user entity.User
	err := r.db.Where("email = ?", entity.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateProfile updates only the given fields. Email changes are not allowed
// through this path; the address belongs to the identity flow.
func (r *UserRepo) UpdateProfile(userID uint, updates map[string]interface{}) error {
	delete(updates, "email")
	updates["updated_at"] = time.Now()

	result := r.db.Model(&entity.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update user profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *UserRepo) Deactivate(userID uint) error {
	now := time.Now()
	result := r.db.Model(&entity.User{}).
		Where("id = ? AND deactivated_at IS NULL", userID).
		Updates(map[string]interface{}{
			"deactivated_at": &now,
			"updated_at":     now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
