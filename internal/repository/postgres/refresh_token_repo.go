package postgres

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/yourusername/tracker-api/internal/domain/entity"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
)

// RefreshTokenRepo implements repository.RefreshTokenRepository using
// PostgreSQL and GORM. Rows are keyed by SHA-256 hash of the credential.
type RefreshTokenRepo struct {
	db *gorm.DB
}

func NewRefreshTokenRepo(gormDB *gorm.DB) (*RefreshTokenRepo, error) {
	if gormDB == nil {
		return nil, fmt.Errorf("GORM DB instance is required for RefreshTokenRepo")
	}
	return &RefreshTokenRepo{db: gormDB}, nil
}

// CreateToken stores a new refresh session row and returns its ID.
func (r *RefreshTokenRepo) CreateToken(token *entity.RefreshToken) (uint, error) {
	result := r.db.Create(token)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to create refresh token: %w", result.Error)
	}
	if token.ID == 0 {
		return 0, fmt.Errorf("no ID returned after creating refresh token")
	}
	return token.ID, nil
}

// GetTokenByHash returns the session row for a hash, including revoked and
// expired rows. The caller decides which failure to report.
func (r *RefreshTokenRepo) GetTokenByHash(tokenHash string) (*entity.RefreshToken, error) {
	var token entity.RefreshToken
	result := r.db.Where("token_hash = ?", tokenHash).First(&token)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token by hash: %w", result.Error)
	}
	return &token, nil
}

// RevokeByHash marks the session as revoked with a reason. Already revoked
// rows are left untouched so the original reason survives.
func (r *RefreshTokenRepo) RevokeByHash(tokenHash, reason string) error {
	result := r.db.Model(&entity.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", tokenHash).
		Updates(map[string]interface{}{
			"revoked_at": time.Now(),
			"reason":     reason,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RevokeAllForUser revokes every active session of a user.
func (r *RefreshTokenRepo) RevokeAllForUser(userID uint, reason string) error {
	result := r.db.Model(&entity.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, time.Now()).
		Updates(map[string]interface{}{
			"revoked_at": time.Now(),
			"reason":     reason,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to revoke all tokens for user %d: %w", userID, result.Error)
	}
	// No ErrNotFound here: a user without active sessions is not an error.
	return nil
}

// CountActiveForUser returns the number of live sessions for a user.
func (r *RefreshTokenRepo) CountActiveForUser(userID uint) (int, error) {
	var count int64
	result := r.db.Model(&entity.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, time.Now()).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count tokens for user %d: %w", userID, result.Error)
	}
	return int(count), nil
}

// RevokeOldestForUser revokes the oldest active sessions, keeping keepCount
// newest ones. Two-step: select victim IDs, then update them.
func (r *RefreshTokenRepo) RevokeOldestForUser(userID uint, keepCount int) error {
	var victimIDs []uint
	result := r.db.Model(&entity.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, time.Now()).
		Order("created_at DESC").
		Offset(keepCount).
		Pluck("id", &victimIDs)
	if result.Error != nil {
		return fmt.Errorf("failed to select oldest tokens for user %d: %w", userID, result.Error)
	}
	if len(victimIDs) == 0 {
		return nil
	}

	updateResult := r.db.Model(&entity.RefreshToken{}).
		Where("id IN ?", victimIDs).
		Updates(map[string]interface{}{
			"revoked_at": time.Now(),
			"reason":     "session limit exceeded",
		})
	if updateResult.Error != nil {
		return fmt.Errorf("failed to revoke oldest tokens for user %d: %w", userID, updateResult.Error)
	}

	log.Printf("[RefreshTokenRepo] Revoked %d oldest sessions for user %d", len(victimIDs), userID)
	return nil
}

// CleanupExpiredTokens deletes rows whose expiry has passed.
func (r *RefreshTokenRepo) CleanupExpiredTokens() (int64, error) {
	result := r.db.Where("expires_at <= ?", time.Now()).Delete(&entity.RefreshToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clean up expired refresh tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}
