package slots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "buildgate:slots:"

// RedisStore keeps concurrency-group slots in Redis so multiple orchestrator
// instances share the same view of in-flight and queued runs. Each group is a
// JSON-encoded State updated under an optimistic WATCH transaction.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to Redis using the given URL.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Enqueue(ctx context.Context, key, runID string, replaceQueued bool) (string, error) {
	var superseded string

	err := s.update(ctx, key, func(state *State) {
		superseded = ""

		if state.InFlight == "" {
			state.InFlight = runID

			return
		}

		if replaceQueued && len(state.Queued) > 0 {
			superseded = state.Queued[len(state.Queued)-1]
			state.Queued[len(state.Queued)-1] = runID

			return
		}

		state.Queued = append(state.Queued, runID)
	})

	return superseded, err
}

func (s *RedisStore) Release(ctx context.Context, key, runID string) (string, error) {
	var promoted string

	err := s.update(ctx, key, func(state *State) {
		promoted = ""

		if state.InFlight != runID {
			return
		}

		state.InFlight = ""

		if len(state.Queued) > 0 {
			state.InFlight = state.Queued[0]
			state.Queued = state.Queued[1:]
			promoted = state.InFlight
		}
	})

	return promoted, err
}

func (s *RedisStore) Remove(ctx context.Context, key, runID string) error {
	return s.update(ctx, key, func(state *State) {
		if state.InFlight == runID {
			state.InFlight = ""

			return
		}

		for i, queued := range state.Queued {
			if queued == runID {
				state.Queued = append(state.Queued[:i], state.Queued[i+1:]...)

				return
			}
		}
	})
}

func (s *RedisStore) State(ctx context.Context, key string) (State, error) {
	payload, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return State{}, nil
	}

	if err != nil {
		return State{}, fmt.Errorf("failed to read slot state: %w", err)
	}

	var state State

	err = json.Unmarshal([]byte(payload), &state)
	if err != nil {
		return State{}, fmt.Errorf("failed to decode slot state: %w", err)
	}

	return state, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// update applies mutate to the group state under a WATCH transaction,
// retrying on contention.
func (s *RedisStore) update(ctx context.Context, key string, mutate func(*State)) error {
	redisKey := redisKeyPrefix + key

	const maxRetries = 10

	for range maxRetries {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			var state State

			payload, err := tx.Get(ctx, redisKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("failed to read slot state: %w", err)
			}

			if payload != "" {
				err = json.Unmarshal([]byte(payload), &state)
				if err != nil {
					return fmt.Errorf("failed to decode slot state: %w", err)
				}
			}

			mutate(&state)

			encoded, err := json.Marshal(state)
			if err != nil {
				return fmt.Errorf("failed to encode slot state: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, redisKey, encoded, 0)

				return nil
			})

			return err
		}, redisKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return errors.New("slot state update aborted after repeated contention")
}
