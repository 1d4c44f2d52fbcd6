package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/tracker-api/internal/domain/entity"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
	"github.com/yourusername/tracker-api/pkg/auth"
)

type MockRefreshTokenRepo struct {
	mock.Mock
}

func (m *MockRefreshTokenRepo) CreateToken(token *entity.RefreshToken) (uint, error) {
	args := m.Called(token)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockRefreshTokenRepo) GetTokenByHash(tokenHash string) (*entity.RefreshToken, error) {
	args := m.Called(tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.RefreshToken), args.Error(1)
}

func (m *MockRefreshTokenRepo) RevokeByHash(tokenHash, reason string) error {
	args := m.Called(tokenHash, reason)
	return args.Error(0)
}

func (m *MockRefreshTokenRepo) RevokeAllForUser(userID uint, reason string) error {
	args := m.Called(userID, reason)
	return args.Error(0)
}

func (m *MockRefreshTokenRepo) CountActiveForUser(userID uint) (int, error) {
	args := m.Called(userID)
	return args.Int(0), args.Error(1)
}

func (m *MockRefreshTokenRepo) RevokeOldestForUser(userID uint, keepCount int) error {
	args := m.Called(userID, keepCount)
	return args.Error(0)
}

func (m *MockRefreshTokenRepo) CleanupExpiredTokens() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(user *entity.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepo) CreateWithIdentity(user *entity.User, identity *entity.UserIdentity) error {
	args := m.Called(user, identity)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(id uint) (*entity.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepo) GetByEmail(email string) (*entity.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepo) UpdateProfile(userID uint, updates map[string]interface{}) error {
	args := m.Called(userID, updates)
	return args.Error(0)
}

func (m *MockUserRepo) Deactivate(userID uint) error {
	args := m.Called(userID)
	return args.Error(0)
}

func newTestManager(t *testing.T) (*TokenManager, *auth.TokenService, *MockRefreshTokenRepo, *MockUserRepo) {
	t.Helper()

	tokenService, err := auth.NewTokenService("manager-test-secret", 15*time.Minute, 30*24*time.Hour)
	require.NoError(t, err)

	refreshRepo := new(MockRefreshTokenRepo)
	userRepo := new(MockUserRepo)

	mgr, err := NewTokenManager(tokenService, refreshRepo, userRepo)
	require.NoError(t, err)
	return mgr, tokenService, refreshRepo, userRepo
}

func activeUser(id uint) *entity.User {
	return &entity.User{ID: id, Email: "user@example.com"}
}

func TestGenerateTokenPair_Success(t *testing.T) {
	mgr, _, refreshRepo, userRepo := newTestManager(t)

	userRepo.On("GetByID", uint(1)).Return(activeUser(1), nil)
	refreshRepo.On("CreateToken", mock.AnythingOfType("*entity.RefreshToken")).Return(uint(10), nil)
	refreshRepo.On("CountActiveForUser", uint(1)).Return(3, nil)

	pair, err := mgr.GenerateTokenPair(1, "203.0.113.1", "test-agent")
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, uint(1), pair.UserID)
	assert.Greater(t, pair.ExpiresIn, 0)

	// The stored row must carry the hash, not the raw credential.
	created := refreshRepo.Calls[0].Arguments.Get(0).(*entity.RefreshToken)
	assert.Equal(t, HashToken(pair.RefreshToken), created.TokenHash)
	assert.NotEqual(t, pair.RefreshToken, created.TokenHash)

	refreshRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestGenerateTokenPair_InactiveUser(t *testing.T) {
	mgr, _, refreshRepo, userRepo := newTestManager(t)

	now := time.Now()
	deactivated := &entity.User{ID: 2, Email: "gone@example.com", DeactivatedAt: &now}
	userRepo.On("GetByID", uint(2)).Return(deactivated, nil)

	pair, err := mgr.GenerateTokenPair(2, "", "")
	require.Error(t, err)
	assert.Nil(t, pair)

	tokenErr, ok := err.(*TokenError)
	require.True(t, ok)
	assert.Equal(t, InactiveUser, tokenErr.Type)

	refreshRepo.AssertNotCalled(t, "CreateToken", mock.Anything)
}

func TestGenerateTokenPair_EnforcesSessionLimit(t *testing.T) {
	mgr, _, refreshRepo, userRepo := newTestManager(t)
	mgr.SetMaxRefreshTokensPerUser(5)

	userRepo.On("GetByID", uint(1)).Return(activeUser(1), nil)
	refreshRepo.On("CreateToken", mock.AnythingOfType("*entity.RefreshToken")).Return(uint(10), nil)
	refreshRepo.On("CountActiveForUser", uint(1)).Return(6, nil)
	refreshRepo.On("RevokeOldestForUser", uint(1), 5).Return(nil)

	_, err := mgr.GenerateTokenPair(1, "", "")
	require.NoError(t, err)

	refreshRepo.AssertCalled(t, "RevokeOldestForUser", uint(1), 5)
}

func TestRefreshTokens_RotationRevokesOldSession(t *testing.T) {
	mgr, tokenService, refreshRepo, userRepo := newTestManager(t)

	refreshToken, expiresAt, err := tokenService.IssueRefreshToken(1)
	require.NoError(t, err)
	hash := HashToken(refreshToken)

	session := entity.NewRefreshToken(1, hash, "203.0.113.1", "agent", expiresAt)
	session.ID = 77

	refreshRepo.On("GetTokenByHash", hash).Return(session, nil)
	refreshRepo.On("RevokeByHash", hash, "rotated").Return(nil)
	userRepo.On("GetByID", uint(1)).Return(activeUser(1), nil)
	refreshRepo.On("CreateToken", mock.AnythingOfType("*entity.RefreshToken")).Return(uint(78), nil)
	refreshRepo.On("CountActiveForUser", uint(1)).Return(2, nil)

	pair, err := mgr.RefreshTokens(refreshToken, "203.0.113.1", "agent")
	require.NoError(t, err)

	assert.NotEqual(t, refreshToken, pair.RefreshToken)
	refreshRepo.AssertCalled(t, "RevokeByHash", hash, "rotated")
	refreshRepo.AssertExpectations(t)
}

func TestRefreshTokens_RevokedSession(t *testing.T) {
	mgr, tokenService, refreshRepo, _ := newTestManager(t)

	refreshToken, expiresAt, err := tokenService.IssueRefreshToken(1)
	require.NoError(t, err)
	hash := HashToken(refreshToken)

	session := entity.NewRefreshToken(1, hash, "", "", expiresAt)
	session.Revoke("logout")

	refreshRepo.On("GetTokenByHash", hash).Return(session, nil)

	pair, err := mgr.RefreshTokens(refreshToken, "", "")
	require.Error(t, err)
	assert.Nil(t, pair)

	tokenErr, ok := err.(*TokenError)
	require.True(t, ok)
	assert.Equal(t, SessionRevoked, tokenErr.Type)

	// A revoked session must not be rotated into a fresh one.
	refreshRepo.AssertNotCalled(t, "RevokeByHash", mock.Anything, mock.Anything)
	refreshRepo.AssertNotCalled(t, "CreateToken", mock.Anything)
}

func TestRefreshTokens_ExpiredSessionRow(t *testing.T) {
	mgr, tokenService, refreshRepo, _ := newTestManager(t)

	refreshToken, _, err := tokenService.IssueRefreshToken(1)
	require.NoError(t, err)
	hash := HashToken(refreshToken)

	// JWT is still valid, but the stored session row already lapsed.
	session := entity.NewRefreshToken(1, hash, "", "", time.Now().Add(-time.Hour))
	refreshRepo.On("GetTokenByHash", hash).Return(session, nil)

	_, err = mgr.RefreshTokens(refreshToken, "", "")
	require.Error(t, err)

	tokenErr, ok := err.(*TokenError)
	require.True(t, ok)
	assert.Equal(t, ExpiredRefreshToken, tokenErr.Type)
}

func TestRefreshTokens_UnknownHash(t *testing.T) {
	mgr, tokenService, refreshRepo, _ := newTestManager(t)

	refreshToken, _, err := tokenService.IssueRefreshToken(1)
	require.NoError(t, err)

	refreshRepo.On("GetTokenByHash", HashToken(refreshToken)).Return(nil, apperrors.ErrNotFound)

	_, err = mgr.RefreshTokens(refreshToken, "", "")
	require.Error(t, err)

	tokenErr, ok := err.(*TokenError)
	require.True(t, ok)
	assert.Equal(t, InvalidRefreshToken, tokenErr.Type)
}

func TestRefreshTokens_GarbageCredential(t *testing.T) {
	mgr, _, refreshRepo, _ := newTestManager(t)

	_, err := mgr.RefreshTokens("not-a-jwt", "", "")
	require.Error(t, err)

	tokenErr, ok := err.(*TokenError)
	require.True(t, ok)
	assert.Equal(t, InvalidRefreshToken, tokenErr.Type)

	refreshRepo.AssertNotCalled(t, "GetTokenByHash", mock.Anything)
}

func TestRefreshTokens_AccessTokenRejected(t *testing.T) {
	mgr, tokenService, refreshRepo, _ := newTestManager(t)

	// An access token must never pass as a refresh credential.
	accessToken, _, err := tokenService.IssueAccessToken(1)
	require.NoError(t, err)

	_, err = mgr.RefreshTokens(accessToken, "", "")
	require.Error(t, err)

	tokenErr, ok := err.(*TokenError)
	require.True(t, ok)
	assert.Equal(t, InvalidRefreshToken, tokenErr.Type)

	refreshRepo.AssertNotCalled(t, "GetTokenByHash", mock.Anything)
}

func TestLogoutFinality(t *testing.T) {
	mgr, tokenService, refreshRepo, _ := newTestManager(t)

	refreshToken, expiresAt, err := tokenService.IssueRefreshToken(1)
	require.NoError(t, err)
	hash := HashToken(refreshToken)

	refreshRepo.On("RevokeByHash", hash, "logout").Return(nil).Once()
	require.NoError(t, mgr.RevokeRefreshToken(refreshToken, "logout"))

	// The same credential presented after logout hits the revoked row.
	revoked := entity.NewRefreshToken(1, hash, "", "", expiresAt)
	revoked.Revoke("logout")
	refreshRepo.On("GetTokenByHash", hash).Return(revoked, nil)

	_, err = mgr.RefreshTokens(refreshToken, "", "")
	require.Error(t, err)

	tokenErr, ok := err.(*TokenError)
	require.True(t, ok)
	assert.Equal(t, SessionRevoked, tokenErr.Type)
}

func TestHashToken_Deterministic(t *testing.T) {
	assert.Equal(t, HashToken("credential"), HashToken("credential"))
	assert.NotEqual(t, HashToken("credential"), HashToken("credential2"))
	assert.Len(t, HashToken("credential"), 64)
}
