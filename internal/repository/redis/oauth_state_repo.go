package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/yourusername/tracker-api/internal/domain/entity"
	apperrors "github.com/yourusername/tracker-api/internal/pkg/errors"
)

const stateKeyPrefix = "oauth:state:"

// OAuthStateRepo implements repository.OAuthStateRepository on Redis. The
// TTL on each key is the only expiry mechanism; no sweeper is needed.
type OAuthStateRepo struct {
	client redis.UniversalClient
}

func NewOAuthStateRepo(client redis.UniversalClient) (*OAuthStateRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for OAuthStateRepo")
	}
	return &OAuthStateRepo{client: client}, nil
}

func (r *OAuthStateRepo) Save(ctx context.Context, state *entity.OAuthState, ttl time.Duration) error {
	if state == nil || state.State == "" {
		return fmt.Errorf("%w: state value is required", apperrors.ErrValidation)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal oauth state: %w", err)
	}
	return r.client.Set(ctx, stateKeyPrefix+state.State, data, ttl).Err()
}

// Consume fetches and deletes the record in one pass. A second call with
// the same value returns apperrors.ErrNotFound, which makes replayed
// callbacks fail closed.
func (r *OAuthStateRepo) Consume(ctx context.Context, stateValue string) (*entity.OAuthState, error) {
	key := stateKeyPrefix + stateValue

	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get oauth state: %w", err)
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("failed to delete oauth state: %w", err)
	}

	var state entity.OAuthState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal oauth state: %w", err)
	}
	return &state, nil
}
