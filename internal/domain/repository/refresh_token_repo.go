package repository

import (
	"github.com/yourusername/tracker-api/internal/domain/entity"
)

// RefreshTokenRepository defines persistence operations for refresh
// sessions. Lookups are always by SHA-256 hash; the raw credential is
// never passed below the manager layer.
type RefreshTokenRepository interface {
	CreateToken(token *entity.RefreshToken) (uint, error)
	// GetTokenByHash returns the session row even when it is revoked or
	// expired. Callers discriminate the failure kind themselves.
	GetTokenByHash(tokenHash string) (*entity.RefreshToken, error)
	RevokeByHash(tokenHash, reason string) error
	RevokeAllForUser(userID uint, reason string) error
	CountActiveForUser(userID uint) (int, error)
	// RevokeOldestForUser revokes the oldest active sessions, keeping the
	// keepCount newest ones.
	RevokeOldestForUser(userID uint, keepCount int) error
	CleanupExpiredTokens() (int64, error)
}
