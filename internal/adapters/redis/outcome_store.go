// Package redis provides Redis-backed adapters: the lost-outcome store and the
// remote stop broadcast.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/target/mammoth/internal/core"
	"github.com/target/mammoth/internal/domain/model"
)

// DefaultOutcomesKey is the list holding lost outcomes.
const DefaultOutcomesKey = "mammoth:lost-outcomes"

// OutcomeStore keeps lost outcomes in a Redis list, oldest first out.
// New entries are pushed on the head and popped from the tail.
type OutcomeStore struct {
	client redis.UniversalClient
	key    string
}

var _ core.OutcomeStore = (*OutcomeStore)(nil)

// NewOutcomeStore creates a store on key (DefaultOutcomesKey when empty).
func NewOutcomeStore(client redis.UniversalClient, key string) *OutcomeStore {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultOutcomesKey
	}
	return &OutcomeStore{client: client, key: key}
}

// Key returns the Redis list key.
func (s *OutcomeStore) Key() string { return s.key }

// Push appends an outcome.
func (s *OutcomeStore) Push(ctx context.Context, outcome model.LostOutcome) error {
	if outcome.JobID == "" {
		return errors.New("lost outcome job id cannot be empty")
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal lost outcome: %w", err)
	}
	if err := s.client.LPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// Pop removes and returns the oldest outcome, or (nil, nil) when the list is empty.
func (s *OutcomeStore) Pop(ctx context.Context) (*model.LostOutcome, error) {
	data, err := s.client.RPop(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil //nolint:nilnil // empty list
		}
		return nil, fmt.Errorf("redis rpop: %w", err)
	}

	var outcome model.LostOutcome
	if err := json.Unmarshal([]byte(data), &outcome); err != nil {
		// The raw entry is already removed; keep it in the error so it can be recovered from logs.
		return nil, fmt.Errorf("unmarshal lost outcome %q: %w", data, err)
	}
	return &outcome, nil
}

// List returns up to limit outcomes, oldest first, without removing them.
// A limit <= 0 returns every entry.
func (s *OutcomeStore) List(ctx context.Context, limit int64) ([]model.LostOutcome, error) {
	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := s.client.LRange(ctx, s.key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	slices.Reverse(raw)

	out := make([]model.LostOutcome, 0, len(raw))
	for _, data := range raw {
		var outcome model.LostOutcome
		if err := json.Unmarshal([]byte(data), &outcome); err != nil {
			return nil, fmt.Errorf("unmarshal lost outcome: %w", err)
		}
		out = append(out, outcome)
	}
	return out, nil
}

// Len returns the number of stored outcomes.
func (s *OutcomeStore) Len(ctx context.Context) (int64, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen: %w", err)
	}
	return n, nil
}
