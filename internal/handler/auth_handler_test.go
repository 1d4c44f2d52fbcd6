package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/yourusername/tracker-api/internal/domain/entity"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
	"github.com/yourusername/tracker-api/internal/provider"
	"github.com/yourusername/tracker-api/internal/service"
	"github.com/yourusername/tracker-api/pkg/auth"
	"github.com/yourusername/tracker-api/pkg/auth/manager"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(user *entity.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *mockUserRepo) CreateWithIdentity(user *entity.User, identity *entity.UserIdentity) error {
	args := m.Called(user, identity)
	return args.Error(0)
}

func (m *mockUserRepo) GetByID(id uint) (*entity.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *mockUserRepo) GetByEmail(email string) (*entity.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *mockUserRepo) UpdateProfile(userID uint, updates map[string]interface{}) error {
	args := m.Called(userID, updates)
	return args.Error(0)
}

func (m *mockUserRepo) Deactivate(userID uint) error {
	args := m.Called(userID)
	return args.Error(0)
}

type mockIdentityRepo struct {
	mock.Mock
}

func (m *mockIdentityRepo) Create(identity *entity.UserIdentity) error {
	args := m.Called(identity)
	return args.Error(0)
}

func (m *mockIdentityRepo) GetByProviderSub(providerName, providerSub string) (*entity.UserIdentity, error) {
	args := m.Called(providerName, providerSub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserIdentity), args.Error(1)
}

func (m *mockIdentityRepo) GetByUserAndProvider(userID uint, providerName string) (*entity.UserIdentity, error) {
	args := m.Called(userID, providerName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserIdentity), args.Error(1)
}

func (m *mockIdentityRepo) DeleteByUserID(userID uint) error {
	args := m.Called(userID)
	return args.Error(0)
}

type mockStateRepo struct {
	mock.Mock
}

func (m *mockStateRepo) Save(ctx context.Context, state *entity.OAuthState, ttl time.Duration) error {
	args := m.Called(ctx, state, ttl)
	return args.Error(0)
}

func (m *mockStateRepo) Consume(ctx context.Context, stateValue string) (*entity.OAuthState, error) {
	args := m.Called(ctx, stateValue)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.OAuthState), args.Error(1)
}

type mockRefreshRepo struct {
	mock.Mock
}

func (m *mockRefreshRepo) CreateToken(token *entity.RefreshToken) (uint, error) {
	args := m.Called(token)
	return args.Get(0).(uint), args.Error(1)
}

func (m *mockRefreshRepo) GetTokenByHash(tokenHash string) (*entity.RefreshToken, error) {
	args := m.Called(tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.RefreshToken), args.Error(1)
}

func (m *mockRefreshRepo) RevokeByHash(tokenHash, reason string) error {
	args := m.Called(tokenHash, reason)
	return args.Error(0)
}

func (m *mockRefreshRepo) RevokeAllForUser(userID uint, reason string) error {
	args := m.Called(userID, reason)
	return args.Error(0)
}

func (m *mockRefreshRepo) CountActiveForUser(userID uint) (int, error) {
	args := m.Called(userID)
	return args.Int(0), args.Error(1)
}

func (m *mockRefreshRepo) RevokeOldestForUser(userID uint, keepCount int) error {
	args := m.Called(userID, keepCount)
	return args.Error(0)
}

func (m *mockRefreshRepo) CleanupExpiredTokens() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

type stubProvider struct {
	profile *provider.Profile
}

func (s *stubProvider) Name() string { return "google" }

func (s *stubProvider) AuthCodeURL(state string) string {
	return "https://accounts.example/authorize?state=" + state
}

func (s *stubProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "provider-token"}, nil
}

func (s *stubProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*provider.Profile, error) {
	return s.profile, nil
}

type handlerFixture struct {
	handler      *AuthHandler
	tokenService *auth.TokenService
	tokenManager *manager.TokenManager
	userRepo     *mockUserRepo
	identityRepo *mockIdentityRepo
	stateRepo    *mockStateRepo
	refreshRepo  *mockRefreshRepo
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	userRepo := new(mockUserRepo)
	identityRepo := new(mockIdentityRepo)
	stateRepo := new(mockStateRepo)
	refreshRepo := new(mockRefreshRepo)

	tokenService, err := auth.NewTokenService("handler-test-secret", 15*time.Minute, 30*24*time.Hour)
	require.NoError(t, err)
	tokenManager, err := manager.NewTokenManager(tokenService, refreshRepo, userRepo)
	require.NoError(t, err)

	p := &stubProvider{profile: &provider.Profile{
		Sub:         "sub-1",
		Email:       "person@example.com",
		DisplayName: "Person",
	}}

	oauthService, err := service.NewOAuthService(provider.NewRegistry(p), userRepo, identityRepo, stateRepo, tokenManager)
	require.NoError(t, err)

	return &handlerFixture{
		handler:      NewAuthHandler(oauthService, tokenManager, "https://app.example.com"),
		tokenService: tokenService,
		tokenManager: tokenManager,
		userRepo:     userRepo,
		identityRepo: identityRepo,
		stateRepo:    stateRepo,
		refreshRepo:  refreshRepo,
	}
}

func errorType(t *testing.T, body []byte) string {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	errType, _ := payload["error_type"].(string)
	return errType
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == manager.RefreshTokenCookie {
			return cookie
		}
	}
	return nil
}

func TestLogin_ReturnsAuthorizationURL(t *testing.T) {
	f := newHandlerFixture(t)
	f.stateRepo.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/auth/login/google", nil)
	c.Params = gin.Params{{Key: "provider", Value: "google"}}

	f.handler.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Contains(t, payload["authorization_url"], "https://accounts.example/authorize?state=")
	assert.NotEmpty(t, payload["flow_id"])
}

func TestLogin_UnknownProvider(t *testing.T) {
	f := newHandlerFixture(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/auth/login/myspace", nil)
	c.Params = gin.Params{{Key: "provider", Value: "myspace"}}

	f.handler.Login(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_provider", errorType(t, w.Body.Bytes()))
}

func TestCallback_SuccessSetsCookieAndRedirects(t *testing.T) {
	f := newHandlerFixture(t)
	state := "callback-state"

	f.stateRepo.On("Consume", mock.Anything, state).Return(&entity.OAuthState{
		State: state, Provider: "google", FlowID: "flow-1", CreatedAt: time.Now(),
	}, nil)
	f.identityRepo.On("GetByProviderSub", "google", "sub-1").Return(&entity.UserIdentity{UserID: 5}, nil)
	f.userRepo.On("GetByID", uint(5)).Return(&entity.User{ID: 5, Email: "person@example.com"}, nil)
	f.userRepo.On("UpdateProfile", uint(5), mock.Anything).Return(nil)
	f.refreshRepo.On("CreateToken", mock.Anything).Return(uint(1), nil)
	f.refreshRepo.On("CountActiveForUser", uint(5)).Return(1, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/auth/callback/google?code=auth-code&state="+state, nil)
	c.Params = gin.Params{{Key: "provider", Value: "google"}}

	f.handler.Callback(c)

	require.Equal(t, http.StatusFound, w.Code)

	// Access token travels in the fragment, never as a query parameter.
	location := w.Header().Get("Location")
	assert.Contains(t, location, "https://app.example.com/auth/callback#access_token=")
	assert.Contains(t, location, "expires_in=")
	assert.NotContains(t, location, "?access_token")

	cookie := refreshCookie(w.Result())
	require.NotNil(t, cookie)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, manager.RefreshCookiePath, cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Greater(t, cookie.MaxAge, 0)
}

func TestCallback_StateMismatch(t *testing.T) {
	f := newHandlerFixture(t)

	f.stateRepo.On("Consume", mock.Anything, "forged").Return(nil, apperrors.ErrNotFound)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/auth/callback/google?code=auth-code&state=forged", nil)
	c.Params = gin.Params{{Key: "provider", Value: "google"}}

	f.handler.Callback(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "provider_exchange_failed", errorType(t, w.Body.Bytes()))
	assert.Nil(t, refreshCookie(w.Result()))
}

func TestCallback_EmailConflict(t *testing.T) {
	f := newHandlerFixture(t)
	state := "conflict-state"

	f.stateRepo.On("Consume", mock.Anything, state).Return(&entity.OAuthState{
		State: state, Provider: "google", FlowID: "flow-1", CreatedAt: time.Now(),
	}, nil)
	f.identityRepo.On("GetByProviderSub", "google", "sub-1").Return(nil, apperrors.ErrNotFound)
	f.userRepo.On("GetByEmail", "person@example.com").Return(&entity.User{ID: 2}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/auth/callback/google?code=auth-code&state="+state, nil)
	c.Params = gin.Params{{Key: "provider", Value: "google"}}

	f.handler.Callback(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "identity_conflict", errorType(t, w.Body.Bytes()))
}

func TestRefresh_MissingCookie(t *testing.T) {
	f := newHandlerFixture(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)

	f.handler.Refresh(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token_missing", errorType(t, w.Body.Bytes()))
}

func TestRefresh_GarbageCookie(t *testing.T) {
	f := newHandlerFixture(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	c.Request.AddCookie(&http.Cookie{Name: manager.RefreshTokenCookie, Value: "garbage"})

	f.handler.Refresh(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token_invalid", errorType(t, w.Body.Bytes()))

	// The dead cookie is cleared so the client stops retrying it.
	cookie := refreshCookie(w.Result())
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestRefresh_RevokedSession(t *testing.T) {
	f := newHandlerFixture(t)

	refreshToken, expiresAt, err := f.tokenService.IssueRefreshToken(5)
	require.NoError(t, err)
	hash := manager.HashToken(refreshToken)

	revoked := entity.NewRefreshToken(5, hash, "", "", expiresAt)
	revoked.Revoke("logout")
	f.refreshRepo.On("GetTokenByHash", hash).Return(revoked, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	c.Request.AddCookie(&http.Cookie{Name: manager.RefreshTokenCookie, Value: refreshToken})

	f.handler.Refresh(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "session_revoked", errorType(t, w.Body.Bytes()))
}

func TestRefresh_SuccessRotatesCookie(t *testing.T) {
	f := newHandlerFixture(t)

	refreshToken, expiresAt, err := f.tokenService.IssueRefreshToken(5)
	require.NoError(t, err)
	hash := manager.HashToken(refreshToken)

	session := entity.NewRefreshToken(5, hash, "", "", expiresAt)
	f.refreshRepo.On("GetTokenByHash", hash).Return(session, nil)
	f.refreshRepo.On("RevokeByHash", hash, "rotated").Return(nil)
	f.userRepo.On("GetByID", uint(5)).Return(&entity.User{ID: 5, Email: "person@example.com"}, nil)
	f.refreshRepo.On("CreateToken", mock.Anything).Return(uint(2), nil)
	f.refreshRepo.On("CountActiveForUser", uint(5)).Return(1, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	c.Request.AddCookie(&http.Cookie{Name: manager.RefreshTokenCookie, Value: refreshToken})

	f.handler.Refresh(c)

	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.NotEmpty(t, payload["access_token"])
	assert.Equal(t, "Bearer", payload["token_type"])
	// The raw refresh credential never appears in a JSON body.
	assert.NotContains(t, payload, "refresh_token")

	cookie := refreshCookie(w.Result())
	require.NotNil(t, cookie)
	assert.NotEmpty(t, cookie.Value)
	assert.NotEqual(t, refreshToken, cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestLogout_AlwaysNoContent(t *testing.T) {
	f := newHandlerFixture(t)

	// Even a garbage credential yields 204 and a cleared cookie.
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	c.Request.AddCookie(&http.Cookie{Name: manager.RefreshTokenCookie, Value: "garbage"})
	f.refreshRepo.On("RevokeByHash", manager.HashToken("garbage"), "logout").Return(apperrors.ErrNotFound)

	f.handler.Logout(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
	cookie := refreshCookie(w.Result())
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestLogout_WithoutCookie(t *testing.T) {
	f := newHandlerFixture(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)

	f.handler.Logout(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
	f.refreshRepo.AssertNotCalled(t, "RevokeByHash", mock.Anything, mock.Anything)
}
