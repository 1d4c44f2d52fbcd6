package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/yourusername/tracker-api/internal/domain/entity"
	"github.com/yourusername/tracker-api/internal/domain/repository"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
	"github.com/yourusername/tracker-api/pkg/auth"
)

const (
	// DefaultMaxRefreshTokensPerUser caps active sessions per account.
	DefaultMaxRefreshTokensPerUser = 10
	// RefreshTokenCookie is the cookie carrying the refresh credential.
	RefreshTokenCookie = "refresh_token"
	// RefreshCookiePath scopes the cookie to the auth endpoints only, so
	// the credential never rides along on resource requests.
	RefreshCookiePath = "/api/auth"
)

// TokenErrorType classifies session-layer failures.
type TokenErrorType string

const (
	TokenGenerationFailed TokenErrorType = "TOKEN_GENERATION_FAILED"

	InvalidRefreshToken TokenErrorType = "INVALID_REFRESH_TOKEN"
	ExpiredRefreshToken TokenErrorType = "EXPIRED_REFRESH_TOKEN"
	// SessionRevoked is distinct from invalid/expired: the credential was
	// real but the session behind it was killed.
	SessionRevoked TokenErrorType = "SESSION_REVOKED"
	UserNotFound   TokenErrorType = "USER_NOT_FOUND"
	InactiveUser   TokenErrorType = "INACTIVE_USER"

	DatabaseError TokenErrorType = "DATABASE_ERROR"
)

// TokenError represents a session-layer token failure.
type TokenError struct {
	Type    TokenErrorType
	Message string
	Err     error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// NewTokenError creates a new session-layer token error.
func NewTokenError(tokenType TokenErrorType, message string, err error) *TokenError {
	return &TokenError{
		Type:    tokenType,
		Message: message,
		Err:     err,
	}
}

// TokenResponse is returned to handlers after issuing a pair. The refresh
// credential is excluded from JSON; it travels only in the cookie.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       uint      `json:"user_id"`
	RefreshToken string    `json:"-"`
}

// TokenManager owns the refresh session lifecycle: issuing pairs, rotating
// on refresh, revocation and cookie transport. The refresh credential is a
// signed JWT whose SHA-256 hash is persisted as a revocable session row.
type TokenManager struct {
	tokenService            *auth.TokenService
	refreshTokenRepo        repository.RefreshTokenRepository
	userRepo                repository.UserRepository
	maxRefreshTokensPerUser int

	cookieDomain string
	cookieSecure bool
}

// NewTokenManager creates a token manager.
func NewTokenManager(
	tokenService *auth.TokenService,
	refreshTokenRepo repository.RefreshTokenRepository,
	userRepo repository.UserRepository,
) (*TokenManager, error) {
	if tokenService == nil {
		return nil, fmt.Errorf("TokenService is required for TokenManager")
	}
	if refreshTokenRepo == nil {
		return nil, fmt.Errorf("RefreshTokenRepository is required for TokenManager")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for TokenManager")
	}

	return &TokenManager{
		tokenService:            tokenService,
		refreshTokenRepo:        refreshTokenRepo,
		userRepo:                userRepo,
		maxRefreshTokensPerUser: DefaultMaxRefreshTokensPerUser,
		cookieSecure:            true,
	}, nil
}

// SetMaxRefreshTokensPerUser sets the active session cap per account.
func (m *TokenManager) SetMaxRefreshTokensPerUser(limit int) {
	if limit > 0 {
		m.maxRefreshTokensPerUser = limit
		log.Printf("[TokenManager] Max refresh tokens per user set to: %d", limit)
	} else {
		log.Printf("[TokenManager] Warning: invalid session limit %d, keeping %d", limit, m.maxRefreshTokensPerUser)
	}
}

// SetCookieAttributes configures refresh cookie transport.
func (m *TokenManager) SetCookieAttributes(domain string, secure bool) {
	m.cookieDomain = domain
	m.cookieSecure = secure
	log.Printf("[TokenManager] Cookie attributes set: Domain=%q, Secure=%v", domain, secure)
}

// GenerateTokenPair issues an access/refresh pair for an existing, active
// user and records the refresh session.
func (m *TokenManager) GenerateTokenPair(userID uint, ipAddress, userAgent string) (*TokenResponse, error) {
	user, err := m.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, NewTokenError(UserNotFound, "user not found", err)
		}
		return nil, NewTokenError(DatabaseError, "failed to load user", err)
	}
	if !user.IsActive() {
		return nil, NewTokenError(InactiveUser, "user is deactivated", nil)
	}

	accessToken, accessExpiresAt, err := m.tokenService.IssueAccessToken(user.ID)
	if err != nil {
		return nil, NewTokenError(TokenGenerationFailed, "failed to issue access token", err)
	}

	refreshToken, refreshExpiresAt, err := m.tokenService.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, NewTokenError(TokenGenerationFailed, "failed to issue refresh token", err)
	}

	session := entity.NewRefreshToken(user.ID, HashToken(refreshToken), ipAddress, userAgent, refreshExpiresAt)
	if _, err := m.refreshTokenRepo.CreateToken(session); err != nil {
		return nil, NewTokenError(DatabaseError, "failed to store refresh session", err)
	}

	if err := m.limitUserSessions(user.ID); err != nil {
		// Not fatal: the pair is already issued, the cap catches up later.
		log.Printf("[TokenManager] Failed to enforce session limit for user %d: %v", user.ID, err)
	}

	log.Printf("[TokenManager] Issued token pair for user %d", user.ID)

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(time.Until(accessExpiresAt).Seconds()),
		ExpiresAt:    accessExpiresAt,
		UserID:       user.ID,
		RefreshToken: refreshToken,
	}, nil
}

// RefreshTokens validates a refresh credential and rotates the session:
// the old session row is revoked and a fresh pair is issued. A credential
// whose session row was revoked fails with SessionRevoked, not with a
// generic invalid-token error.
func (m *TokenManager) RefreshTokens(refreshToken, ipAddress, userAgent string) (*TokenResponse, error) {
	claims, tokenErr := m.tokenService.ValidateToken(refreshToken, auth.TokenTypeRefresh)
	if tokenErr != nil {
		if tokenErr.IsExpired() {
			return nil, NewTokenError(ExpiredRefreshToken, "refresh token is expired", tokenErr)
		}
		return nil, NewTokenError(InvalidRefreshToken, "refresh token is invalid", tokenErr)
	}

	hash := HashToken(refreshToken)
	session, err := m.refreshTokenRepo.GetTokenByHash(hash)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, NewTokenError(InvalidRefreshToken, "refresh session not found", err)
		}
		return nil, NewTokenError(DatabaseError, "failed to look up refresh session", err)
	}

	if session.IsRevoked() {
		log.Printf("[TokenManager] Refresh attempt on revoked session %d (user %d, reason %q)",
			session.ID, session.UserID, session.Reason)
		return nil, NewTokenError(SessionRevoked, "session has been revoked", nil)
	}
	if !session.IsValid() {
		return nil, NewTokenError(ExpiredRefreshToken, "refresh session is expired", nil)
	}
	if session.UserID != claims.UserID {
		// Hash collision or tampering; treat as invalid either way.
		return nil, NewTokenError(InvalidRefreshToken, "refresh session does not match token subject", nil)
	}

	// Rotation: the presented credential is single-use.
	if err := m.refreshTokenRepo.RevokeByHash(hash, "rotated"); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		log.Printf("[TokenManager] Failed to revoke rotated session %d: %v", session.ID, err)
	}

	pair, err := m.GenerateTokenPair(claims.UserID, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	log.Printf("[TokenManager] Rotated refresh session for user %d", claims.UserID)
	return pair, nil
}

// RevokeRefreshToken revokes the session behind a credential (logout).
func (m *TokenManager) RevokeRefreshToken(refreshToken, reason string) error {
	err := m.refreshTokenRepo.RevokeByHash(HashToken(refreshToken), reason)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return NewTokenError(InvalidRefreshToken, "refresh session not found", err)
		}
		return NewTokenError(DatabaseError, "failed to revoke refresh session", err)
	}
	log.Printf("[TokenManager] Revoked refresh session (%s)", reason)
	return nil
}

// RevokeAllUserTokens revokes every active session of a user.
func (m *TokenManager) RevokeAllUserTokens(userID uint, reason string) error {
	if err := m.refreshTokenRepo.RevokeAllForUser(userID, reason); err != nil {
		return NewTokenError(DatabaseError, "failed to revoke user sessions", err)
	}
	log.Printf("[TokenManager] Revoked all sessions for user %d (%s)", userID, reason)
	return nil
}

// SetRefreshTokenCookie writes the refresh credential into an HttpOnly
// cookie scoped to the auth endpoints.
func (m *TokenManager) SetRefreshTokenCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    refreshToken,
		Path:     RefreshCookiePath,
		Domain:   m.cookieDomain,
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.tokenService.RefreshExpiry().Seconds()),
	})
}

// GetRefreshTokenFromCookie reads the refresh credential from the request.
func (m *TokenManager) GetRefreshTokenFromCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(RefreshTokenCookie)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", NewTokenError(InvalidRefreshToken, "refresh_token cookie not found", err)
		}
		return "", NewTokenError(InvalidRefreshToken, "failed to read refresh_token cookie", err)
	}
	return cookie.Value, nil
}

// ClearRefreshTokenCookie deletes the refresh cookie.
func (m *TokenManager) ClearRefreshTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    "",
		Path:     RefreshCookiePath,
		Domain:   m.cookieDomain,
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// CleanupExpiredTokens deletes expired session rows.
func (m *TokenManager) CleanupExpiredTokens() error {
	count, err := m.refreshTokenRepo.CleanupExpiredTokens()
	if err != nil {
		return NewTokenError(DatabaseError, "failed to clean up expired sessions", err)
	}
	log.Printf("[TokenManager] Cleaned up %d expired refresh sessions", count)
	return nil
}

// StartCleanupLoop runs periodic session cleanup until ctx is cancelled.
func (m *TokenManager) StartCleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Printf("[TokenManager] Starting session cleanup loop every %v", interval)
		for {
			select {
			case <-ticker.C:
				if err := m.CleanupExpiredTokens(); err != nil {
					log.Printf("[TokenManager] Cleanup error: %v", err)
				}
			case <-ctx.Done():
				log.Println("[TokenManager] Cleanup loop stopped")
				return
			}
		}
	}()
}

// HashToken returns the hex SHA-256 of a credential. Only hashes are
// stored, so a database leak does not leak usable refresh tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (m *TokenManager) limitUserSessions(userID uint) error {
	count, err := m.refreshTokenRepo.CountActiveForUser(userID)
	if err != nil {
		return fmt.Errorf("failed to count sessions: %w", err)
	}

	if count > m.maxRefreshTokensPerUser {
		log.Printf("[TokenManager] Session limit exceeded for user %d (%d > %d), revoking oldest",
			userID, count, m.maxRefreshTokensPerUser)
		if err := m.refreshTokenRepo.RevokeOldestForUser(userID, m.maxRefreshTokensPerUser); err != nil {
			return fmt.Errorf("failed to revoke oldest sessions: %w", err)
		}
	}
	return nil
}
