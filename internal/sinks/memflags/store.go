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

// Package memflags implements the default in-memory ports.FeatureFlagStore,
// the read-mostly sync.RWMutex-guarded-map idiom used throughout the
// teacher's monitors (metrics_collector.go) applied to boolean flags
// instead of counters.
package memflags

import (
	"context"
	"sync"
	"time"

	"axonflow/controlplane/internal/ports"
)

// Store is an in-memory ports.FeatureFlagStore with no persistence across
// process restarts. Suitable as the zero-dependency default and for tests.
type Store struct {
	mu      sync.RWMutex
	flags   map[string]bool
	changes chan ports.FlagChange
}

// New builds an empty Store, optionally seeded with defaults.
func New(defaults map[string]bool) *Store {
	flags := make(map[string]bool, len(defaults))
	for k, v := range defaults {
		flags[k] = v
	}
	return &Store{flags: flags, changes: make(chan ports.FlagChange, 64)}
}

// Get reads a flag's value, defaulting to false if unset.
func (s *Store) Get(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[name], nil
}

// Set writes a flag's value and emits a FlagChange on the change stream
// (non-blocking: a full channel drops the notification rather than
// stalling the caller).
func (s *Store) Set(ctx context.Context, name string, value bool, meta map[string]string) error {
	s.mu.Lock()
	s.flags[name] = value
	s.mu.Unlock()

	select {
	case s.changes <- ports.FlagChange{Name: name, Value: value, Timestamp: time.Now()}:
	default:
	}
	return nil
}

// Changes returns the channel of flag mutations.
func (s *Store) Changes() <-chan ports.FlagChange { return s.changes }
