package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/tracker-api/internal/domain/entity"
	"github.com/yourusername/tracker-api/internal/domain/repository"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
	"github.com/yourusername/tracker-api/internal/provider"
	"github.com/yourusername/tracker-api/pkg/auth/manager"
)

// StateTTL is how long a pending login flow stays valid.
const StateTTL = 5 * time.Minute

// CompleteLoginInput carries the callback parameters plus request metadata
// recorded on the refresh session.
type CompleteLoginInput struct {
	Provider  string
	Code      string
	State     string
	IPAddress string
	UserAgent string
}

// LoginResult is the outcome of a completed provider login.
type LoginResult struct {
	User  *entity.User
	Token *manager.TokenResponse
}

// OAuthService drives the provider login flow: anti-forgery state, code
// exchange, profile fetch, identity upsert and token issuance.
type OAuthService struct {
	registry     *provider.Registry
	userRepo     repository.UserRepository
	identityRepo repository.UserIdentityRepository
	stateRepo    repository.OAuthStateRepository
	tokenManager *manager.TokenManager
}

func NewOAuthService(
	registry *provider.Registry,
	userRepo repository.UserRepository,
	identityRepo repository.UserIdentityRepository,
	stateRepo repository.OAuthStateRepository,
	tokenManager *manager.TokenManager,
) (*OAuthService, error) {
	if registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if identityRepo == nil {
		return nil, fmt.Errorf("identity repository is required")
	}
	if stateRepo == nil {
		return nil, fmt.Errorf("state repository is required")
	}
	if tokenManager == nil {
		return nil, fmt.Errorf("token manager is required")
	}
	return &OAuthService{
		registry:     registry,
		userRepo:     userRepo,
		identityRepo: identityRepo,
		stateRepo:    stateRepo,
		tokenManager: tokenManager,
	}, nil
}

// StartLogin creates a one-time state record and returns the provider's
// authorization URL together with a flow id for log correlation.
func (s *OAuthService) StartLogin(ctx context.Context, providerName string) (authURL, flowID string, err error) {
	p, err := s.registry.Get(providerName)
	if err != nil {
		return "", "", err
	}

	stateValue, err := generateStateValue()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate login state: %w", err)
	}

	record := &entity.OAuthState{
		State:     stateValue,
		Provider:  p.Name(),
		FlowID:    uuid.NewString(),
		CreatedAt: time.Now(),
	}
	if err := s.stateRepo.Save(ctx, record, StateTTL); err != nil {
		return "", "", fmt.Errorf("failed to store login state: %w", err)
	}

	log.Printf("[OAuthService] Started %s login flow %s", p.Name(), record.FlowID)
	return p.AuthCodeURL(stateValue), record.FlowID, nil
}

// CompleteLogin consumes the state, exchanges the code, fetches the profile
// and upserts the identity. Any provider-side failure collapses to
// ErrProviderExchange; the detail stays in the logs. No user or session is
// created unless the whole chain succeeds.
func (s *OAuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*LoginResult, error) {
	p, err := s.registry.Get(input.Provider)
	if err != nil {
		return nil, err
	}
	if input.Code == "" || input.State == "" {
		return nil, fmt.Errorf("%w: code and state are required", apperrors.ErrValidation)
	}

	record, err := s.stateRepo.Consume(ctx, input.State)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[OAuthService] State not found or already used for %s callback", p.Name())
			return nil, fmt.Errorf("%w: unknown or expired state", apperrors.ErrProviderExchange)
		}
		return nil, fmt.Errorf("failed to consume login state: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(record.State), []byte(input.State)) != 1 || record.Provider != p.Name() {
		log.Printf("[OAuthService] State mismatch on %s callback (flow %s)", p.Name(), record.FlowID)
		return nil, fmt.Errorf("%w: state mismatch", apperrors.ErrProviderExchange)
	}

	token, err := p.Exchange(ctx, input.Code)
	if err != nil {
		log.Printf("[OAuthService] Code exchange failed (flow %s): %v", record.FlowID, err)
		return nil, fmt.Errorf("%w: code exchange failed", apperrors.ErrProviderExchange)
	}

	profile, err := p.FetchProfile(ctx, token)
	if err != nil {
		log.Printf("[OAuthService] Profile fetch failed (flow %s): %v", record.FlowID, err)
		return nil, fmt.Errorf("%w: profile fetch failed", apperrors.ErrProviderExchange)
	}

	user, err := s.upsertIdentity(p.Name(), profile)
	if err != nil {
		return nil, err
	}

	tokenResp, err := s.tokenManager.GenerateTokenPair(user.ID, input.IPAddress, input.UserAgent)
	if err != nil {
		return nil, err
	}

	log.Printf("[OAuthService] Completed %s login for user %d (flow %s)", p.Name(), user.ID, record.FlowID)
	return &LoginResult{User: user, Token: tokenResp}, nil
}

// upsertIdentity resolves the provider profile to a local user. A known
// (provider, sub) pair always resolves to the same user; the profile
// fields are refreshed on every login. Accounts are never merged by email:
// a matching address without an identity link is a conflict.
func (s *OAuthService) upsertIdentity(providerName string, profile *provider.Profile) (*entity.User, error) {
	identity, err := s.identityRepo.GetByProviderSub(providerName, profile.Sub)
	if err == nil && identity != nil {
		return s.refreshKnownUser(identity.UserID, profile)
	}
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	email := entity.NormalizeEmail(profile.Email)
	if email == "" {
		log.Printf("[OAuthService] %s profile %s has no usable email", providerName, profile.Sub)
		return nil, fmt.Errorf("%w: provider returned no email", apperrors.ErrProviderExchange)
	}

	existing, err := s.userRepo.GetByEmail(email)
	if err == nil && existing != nil {
		log.Printf("[OAuthService] Email %s already belongs to user %d without a %s link",
			email, existing.ID, providerName)
		return nil, fmt.Errorf("%w: email already in use by another account", apperrors.ErrConflict)
	}
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	user := &entity.User{
		Email:       email,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
		LastLoginAt: &now,
	}
	newIdentity := &entity.UserIdentity{
		Provider:      providerName,
		ProviderSub:   profile.Sub,
		ProviderEmail: email,
	}
	if err := s.userRepo.CreateWithIdentity(user, newIdentity); err != nil {
		return nil, fmt.Errorf("failed to create user from %s login: %w", providerName, err)
	}

	log.Printf("[OAuthService] Created user %d from %s identity", user.ID, providerName)
	return user, nil
}

func (s *OAuthService) refreshKnownUser(userID uint, profile *provider.Profile) (*entity.User, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, fmt.Errorf("%w: account is deactivated", apperrors.ErrUserDeactivated)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"last_login_at": &now,
	}
	if profile.DisplayName != "" && profile.DisplayName != user.DisplayName {
		updates["display_name"] = profile.DisplayName
		user.DisplayName = profile.DisplayName
	}
	if profile.AvatarURL != "" && profile.AvatarURL != user.AvatarURL {
		updates["avatar_url"] = profile.AvatarURL
		user.AvatarURL = profile.AvatarURL
	}
	if err := s.userRepo.UpdateProfile(user.ID, updates); err != nil {
		return nil, fmt.Errorf("failed to refresh user profile: %w", err)
	}
	user.LastLoginAt = &now
	return user, nil
}

func generateStateValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
