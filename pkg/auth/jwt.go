package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenType discriminates the two kinds of JWT the service issues. The
// value is embedded in the "typ" claim, so an access token can never pass
// where a refresh token is expected and vice versa.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenErrorKind names a validation failure. Callers branch on the kind,
// not the message.
type TokenErrorKind string

const (
	TokenMalformed        TokenErrorKind = "TOKEN_MALFORMED"
	TokenExpired          TokenErrorKind = "TOKEN_EXPIRED"
	TokenSignatureInvalid TokenErrorKind = "TOKEN_SIGNATURE_INVALID"
	TokenWrongType        TokenErrorKind = "TOKEN_WRONG_TYPE"
	TokenNotValidYet      TokenErrorKind = "TOKEN_NOT_VALID_YET"
	TokenInvalid          TokenErrorKind = "TOKEN_INVALID"
)

// TokenError is the failure value returned by ValidateToken. Malformed or
// forged input produces a TokenError, never a panic.
type TokenError struct {
	Kind    TokenErrorKind
	Message string
	Err     error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// IsExpired reports whether the failure was an expiry, as opposed to a
// structurally bad or forged token.
func (e *TokenError) IsExpired() bool {
	return e.Kind == TokenExpired
}

func newTokenError(kind TokenErrorKind, message string, err error) *TokenError {
	return &TokenError{Kind: kind, Message: message, Err: err}
}

// Claims carries the identity payload of both token kinds.
type Claims struct {
	UserID    uint   `json:"user_id"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 JWTs. It does no I/O: session
// persistence and revocation live in the manager layer above it.
type TokenService struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
}

// NewTokenService creates a token service. The signing secret is required;
// zero expiries fall back to 15 minutes / 30 days.
func NewTokenService(secret string, accessExpiry, refreshExpiry time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required for TokenService")
	}
	if accessExpiry <= 0 {
		accessExpiry = 15 * time.Minute
	}
	if refreshExpiry <= 0 {
		refreshExpiry = 30 * 24 * time.Hour
	}
	return &TokenService{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		issuer:        "tracker-api",
	}, nil
}

// AccessExpiry returns the configured access token lifetime.
func (s *TokenService) AccessExpiry() time.Duration {
	return s.accessExpiry
}

// RefreshExpiry returns the configured refresh token lifetime.
func (s *TokenService) RefreshExpiry() time.Duration {
	return s.refreshExpiry
}

// IssueAccessToken creates a short-lived access token for userID and
// returns the signed string with its expiry time.
func (s *TokenService) IssueAccessToken(userID uint) (string, time.Time, error) {
	return s.issue(userID, TokenTypeAccess, s.accessExpiry)
}

// IssueRefreshToken creates a long-lived refresh token for userID.
func (s *TokenService) IssueRefreshToken(userID uint) (string, time.Time, error) {
	return s.issue(userID, TokenTypeRefresh, s.refreshExpiry)
}

func (s *TokenService) issue(userID uint, tokenType TokenType, expiry time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(expiry)

	claims := &Claims{
		UserID:    userID,
		TokenType: string(tokenType),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   fmt.Sprintf("%d", userID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses tokenString, verifies the signature and expiry, and
// checks that the embedded type matches expected. On failure it returns a
// nil Claims and a typed TokenError.
func (s *TokenService) ValidateToken(tokenString string, expected TokenType) (*Claims, *TokenError) {
	claims := &Claims{}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc)
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) {
			switch {
			case ve.Errors&jwt.ValidationErrorMalformed != 0:
				return nil, newTokenError(TokenMalformed, "token is malformed", err)
			case ve.Errors&jwt.ValidationErrorExpired != 0:
				return nil, newTokenError(TokenExpired, "token is expired", err)
			case ve.Errors&jwt.ValidationErrorNotValidYet != 0:
				return nil, newTokenError(TokenNotValidYet, "token not valid yet", err)
			case ve.Errors&jwt.ValidationErrorSignatureInvalid != 0:
				return nil, newTokenError(TokenSignatureInvalid, "signature is invalid", err)
			default:
				return nil, newTokenError(TokenInvalid, "token validation failed", err)
			}
		}
		return nil, newTokenError(TokenInvalid, "token validation failed", err)
	}

	if !token.Valid {
		return nil, newTokenError(TokenInvalid, "invalid token", nil)
	}

	if claims.TokenType != string(expected) {
		return nil, newTokenError(TokenWrongType,
			fmt.Sprintf("expected %s token, got %q", expected, claims.TokenType), nil)
	}
	if claims.UserID == 0 {
		return nil, newTokenError(TokenInvalid, "token has no user id", nil)
	}

	return claims, nil
}
