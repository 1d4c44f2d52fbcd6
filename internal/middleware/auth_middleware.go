package middleware

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/tracker-api/internal/domain/entity"
	"github.com/yourusername/tracker-api/internal/domain/repository"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
	"github.com/yourusername/tracker-api/pkg/auth"
)

// Context keys set by RequireAuth.
const (
	ContextUserIDKey = "user_id"
	ContextUserKey   = "current_user"
)

// AuthMiddleware validates access tokens on protected routes. The access
// token travels only in the Authorization header; the refresh cookie never
// authenticates a resource request. The middleware validates, it never
// refreshes.
type AuthMiddleware struct {
	tokenService *auth.TokenService
	userRepo     repository.UserRepository
}

func NewAuthMiddleware(tokenService *auth.TokenService, userRepo repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
		userRepo:     userRepo,
	}
}

// RequireAuth rejects the request unless a valid access token resolves to
// an existing, active user. The user row is loaded fresh on every request
// so deactivation takes effect within one access-token lifetime at most.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_format"})
			c.Abort()
			return
		}

		claims, tokenErr := m.tokenService.ValidateToken(parts[1], auth.TokenTypeAccess)
		if tokenErr != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "error_type": "token_invalid"})
			c.Abort()
			return
		}

		user, err := m.userRepo.GetByID(claims.UserID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "User no longer exists", "error_type": "user_not_found"})
			} else {
				log.Printf("[AuthMiddleware] Failed to load user %d: %v", claims.UserID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
			}
			c.Abort()
			return
		}
		if !user.IsActive() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Account is deactivated", "error_type": "user_deactivated"})
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextUserKey, user)

		c.Next()
	}
}

// CurrentUser returns the user RequireAuth stored in the context.
func CurrentUser(c *gin.Context) (*entity.User, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*entity.User)
	return user, ok
}

// CurrentUserID returns the user id RequireAuth stored in the context.
func CurrentUserID(c *gin.Context) (uint, bool) {
	value, exists := c.Get(ContextUserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok
}
