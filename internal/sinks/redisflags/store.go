// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package redisflags implements ports.FeatureFlagStore over Redis, grounded
// on the teacher's Redis-backed rate limiter in agent/redis_rate_limit.go:
// redis.ParseURL + redis.NewClient + a startup Ping, the same connection
// idiom applied here to a flag hash instead of a sliding-window counter.
package redisflags

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"axonflow/controlplane/internal/ports"
)

const hashKey = "axonflow:feature_flags"

// Store is a Redis-backed ports.FeatureFlagStore. Flags live in a single
// hash; Set publishes to a pub/sub channel so Changes() can fan changes out
// to a local goroutine without polling.
type Store struct {
	client  *redis.Client
	changes chan ports.FlagChange
	cancel  context.CancelFunc
}

// New parses redisURL (format: redis://host:port[/db]) the same way
// initRedis does, pings to fail fast on a bad connection, and starts a
// background subscriber feeding Changes().
func New(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	subCtx, subCancel := context.WithCancel(context.Background())
	s := &Store{client: client, changes: make(chan ports.FlagChange, 64), cancel: subCancel}
	s.watch(subCtx)
	return s, nil
}

func (s *Store) watch(ctx context.Context) {
	sub := s.client.Subscribe(ctx, "axonflow:flag_changes")
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				value := msg.Payload == "true"
				select {
				case s.changes <- ports.FlagChange{Name: msg.Channel, Value: value, Timestamp: time.Now()}:
				default:
				}
			}
		}
	}()
}

// Get reads a flag's boolean value, defaulting to false if unset.
func (s *Store) Get(ctx context.Context, name string) (bool, error) {
	v, err := s.client.HGet(ctx, hashKey, name).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redisflags get %s: %w", name, err)
	}
	return strconv.ParseBool(v)
}

// Set writes a flag's value and publishes the change for any subscriber.
// meta is not persisted by this binding (no audit table in core scope) but
// is accepted to satisfy the port.
func (s *Store) Set(ctx context.Context, name string, value bool, meta map[string]string) error {
	if err := s.client.HSet(ctx, hashKey, name, strconv.FormatBool(value)).Err(); err != nil {
		return fmt.Errorf("redisflags set %s: %w", name, err)
	}
	return s.client.Publish(ctx, "axonflow:flag_changes", strconv.FormatBool(value)).Err()
}

// Changes returns the channel of flag mutations observed via Redis pub/sub.
func (s *Store) Changes() <-chan ports.FlagChange { return s.changes }

// Close stops the background subscriber and closes the Redis connection.
func (s *Store) Close() error {
	s.cancel()
	return s.client.Close()
}
