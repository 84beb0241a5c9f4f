package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tradecouncil/internal/services/coordinator"
	"tradecouncil/pkg/errors"
)

// DefaultWeightKey holds the coordinator state when no key is configured
const DefaultWeightKey = "council:agent_state"

// WeightStore persists the coordinator's agent weights and performance
// histories as one JSON document
type WeightStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewWeightStore creates a store. ttl 0 keeps the snapshot forever.
func NewWeightStore(client *redis.Client, key string, ttl time.Duration) *WeightStore {
	if key == "" {
		key = DefaultWeightKey
	}
	return &WeightStore{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

// Save stores a snapshot, replacing the previous one
func (s *WeightStore) Save(ctx context.Context, state coordinator.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "failed to marshal agent state")
	}

	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to save agent state to redis: key=%s", s.key)
	}

	return nil
}

// Load returns the stored snapshot or errors.ErrNotFound
func (s *WeightStore) Load(ctx context.Context) (coordinator.State, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return coordinator.State{}, errors.Wrapf(errors.ErrNotFound, "agent state not found: key=%s", s.key)
	}
	if err != nil {
		return coordinator.State{}, errors.Wrapf(err, "failed to get agent state from redis: key=%s", s.key)
	}

	var state coordinator.State
	if err := json.Unmarshal(data, &state); err != nil {
		return coordinator.State{}, errors.Wrapf(errors.ErrMalformedMessage, "agent state: %v", err)
	}

	return state, nil
}

// Delete removes the snapshot
func (s *WeightStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrapf(err, "failed to delete agent state from redis: key=%s", s.key)
	}
	return nil
}
