package entity

import "time"

// RefreshToken stores a refresh session record (hash-only model). The raw
// refresh credential never touches the database; only its SHA-256 hash does.
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;index" json:"user_id"`
	TokenHash string     `gorm:"column:token_hash;type:text;not null;uniqueIndex" json:"-"`
	IPAddress string     `gorm:"size:50;not null;default:''" json:"ip_address"`
	UserAgent string     `gorm:"type:text;not null;default:''" json:"user_agent"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	Reason    string     `gorm:"size:255" json:"reason,omitempty"`
}

// NewRefreshToken creates a refresh session entity from a precomputed
// SHA-256 token hash.
func NewRefreshToken(userID uint, tokenHash, ipAddress, userAgent string, expiresAt time.Time) *RefreshToken {
	return &RefreshToken{
		UserID:    userID,
		TokenHash: tokenHash,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
}

// IsRevoked reports whether the session was explicitly revoked.
func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

// IsValid checks that the session is neither revoked nor expired.
func (rt *RefreshToken) IsValid() bool {
	return rt.RevokedAt == nil && rt.ExpiresAt.After(time.Now())
}

// Revoke marks the session as revoked with a reason.
func (rt *RefreshToken) Revoke(reason string) {
	now := time.Now()
	rt.RevokedAt = &now
	rt.Reason = reason
}

// SessionInfo returns safe session details for clients.
func (rt *RefreshToken) SessionInfo() map[string]interface{} {
	info := map[string]interface{}{
		"id":         rt.ID,
		"ip_address": rt.IPAddress,
		"user_agent": rt.UserAgent,
		"created_at": rt.CreatedAt,
		"expires_at": rt.ExpiresAt,
	}

	if rt.RevokedAt != nil {
		info["revoked_at"] = rt.RevokedAt
	}
	if rt.Reason != "" {
		info["reason"] = rt.Reason
	}

	return info
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}
