package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/tracker-api/internal/middleware"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
	"github.com/yourusername/tracker-api/internal/service"
	"github.com/yourusername/tracker-api/pkg/auth/manager"
)

// AuthHandler exposes the provider login flow, refresh rotation, identity
// lookup and logout under /api/auth.
type AuthHandler struct {
	oauthService *service.OAuthService
	tokenManager *manager.TokenManager
	frontendURL  string
}

func NewAuthHandler(oauthService *service.OAuthService, tokenManager *manager.TokenManager, frontendURL string) *AuthHandler {
	return &AuthHandler{
		oauthService: oauthService,
		tokenManager: tokenManager,
		frontendURL:  frontendURL,
	}
}

// Login handles GET /api/auth/login/:provider. It returns the provider's
// authorization URL; the SPA performs the actual redirect.
func (h *AuthHandler) Login(c *gin.Context) {
	providerName := c.Param("provider")

	authURL, flowID, err := h.oauthService.StartLogin(c.Request.Context(), providerName)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown provider", "error_type": "unknown_provider"})
			return
		}
		log.Printf("[AuthHandler] Failed to start %s login: %v", providerName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start login", "error_type": "internal_server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorization_url": authURL,
		"flow_id":           flowID,
	})
}

// Callback handles GET /api/auth/callback/:provider. On success it sets
// the refresh cookie and redirects to the frontend with the access token
// in the URL fragment, which never reaches server logs. No user or session
// exists if any step failed.
func (h *AuthHandler) Callback(c *gin.Context) {
	result, err := h.oauthService.CompleteLogin(c.Request.Context(), service.CompleteLoginInput{
		Provider:  c.Param("provider"),
		Code:      c.Query("code"),
		State:     c.Query("state"),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.renderCompleteLoginError(c, err)
		return
	}

	h.tokenManager.SetRefreshTokenCookie(c.Writer, result.Token.RefreshToken)

	redirectURL := fmt.Sprintf("%s/auth/callback#access_token=%s&expires_in=%d",
		h.frontendURL, result.Token.AccessToken, result.Token.ExpiresIn)
	c.Redirect(http.StatusFound, redirectURL)
}

func (h *AuthHandler) renderCompleteLoginError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid callback parameters", "error_type": "validation_error"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Email already in use by another account", "error_type": "identity_conflict"})
	case errors.Is(err, apperrors.ErrUserDeactivated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Account is deactivated", "error_type": "user_deactivated"})
	case errors.Is(err, apperrors.ErrProviderExchange):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Login could not be completed", "error_type": "provider_exchange_failed"})
	default:
		log.Printf("[AuthHandler] Callback failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login could not be completed", "error_type": "internal_server_error"})
	}
}

// Refresh handles POST /api/auth/refresh. The credential arrives only in
// the HttpOnly cookie; a successful rotation replaces the cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := h.tokenManager.GetRefreshTokenFromCookie(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token is missing", "error_type": "token_missing"})
		return
	}

	tokenResp, err := h.tokenManager.RefreshTokens(refreshToken, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		var tokenErr *manager.TokenError
		if errors.As(err, &tokenErr) {
			switch tokenErr.Type {
			case manager.SessionRevoked:
				h.tokenManager.ClearRefreshTokenCookie(c.Writer)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Session has been revoked", "error_type": "session_revoked"})
			case manager.InvalidRefreshToken, manager.ExpiredRefreshToken:
				h.tokenManager.ClearRefreshTokenCookie(c.Writer)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired refresh token", "error_type": "token_invalid"})
			case manager.UserNotFound:
				h.tokenManager.ClearRefreshTokenCookie(c.Writer)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "User no longer exists", "error_type": "user_not_found"})
			case manager.InactiveUser:
				h.tokenManager.ClearRefreshTokenCookie(c.Writer)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Account is deactivated", "error_type": "user_deactivated"})
			default:
				log.Printf("[AuthHandler] Refresh failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh tokens", "error_type": "internal_server_error"})
			}
			return
		}
		log.Printf("[AuthHandler] Refresh failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh tokens", "error_type": "internal_server_error"})
		return
	}

	h.tokenManager.SetRefreshTokenCookie(c.Writer, tokenResp.RefreshToken)
	c.JSON(http.StatusOK, tokenResp)
}

// Me handles GET /api/auth/me for an authenticated request.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"avatar_url":   user.AvatarURL,
		"created_at":   user.CreatedAt,
	})
}

// Logout handles POST /api/auth/logout. It always answers 204 and always
// clears the cookie; a garbage or missing credential changes nothing about
// the outcome the client observes.
func (h *AuthHandler) Logout(c *gin.Context) {
	if refreshToken, err := h.tokenManager.GetRefreshTokenFromCookie(c.Request); err == nil && refreshToken != "" {
		if err := h.tokenManager.RevokeRefreshToken(refreshToken, "logout"); err != nil {
			log.Printf("[AuthHandler] Logout revoke failed (ignored): %v", err)
		}
	}

	h.tokenManager.ClearRefreshTokenCookie(c.Writer)
	c.Status(http.StatusNoContent)
}
