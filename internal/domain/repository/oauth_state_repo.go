package repository

import (
	"context"
	"time"

	"github.com/yourusername/tracker-api/internal/domain/entity"
)

// OAuthStateRepository stores anti-forgery login states. Records expire on
// their own after the TTL; Consume removes the record so a state can never
// be used twice.
type OAuthStateRepository interface {
	Save(ctx context.Context, state *entity.OAuthState, ttl time.Duration) error
	// Consume returns the record for stateValue and deletes it in the same
	// call. Missing or expired states map to apperrors.ErrNotFound.
	Consume(ctx context.Context, stateValue string) (*entity.OAuthState, error)
}
