// Package redisstore keeps the ledger snapshot under a single Redis key, for
// deployments that run the tracker without local disk.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/warp/coop-banker/ledger"
)

// DefaultKey holds the snapshot document.
const DefaultKey = "coopbank:ledger"

// Store implements ledger.Store. The snapshot is the same JSON document the
// file store writes, so SET replaces it atomically.
type Store struct {
	client redis.Cmdable
	key    string
}

// New wraps an existing client. An empty key selects DefaultKey.
func New(client redis.Cmdable, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, key string) (*Store, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return New(client, key), client, nil
}

func (s *Store) Load(ctx context.Context) (*ledger.State, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ledger.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", s.key, err)
	}

	state := ledger.NewState()
	state.Version = 0
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.key, err)
	}
	if err := ledger.CheckVersion(state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, state *ledger.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", s.key, err)
	}
	return nil
}
