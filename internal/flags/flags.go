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

// Package flags implements the Feature Flags store wrapper and the
// Activation Monitor. Reads are lock-free against an atomically-swapped
// snapshot; writes serialize through the backing ports.FeatureFlagStore,
// per spec §5's read-mostly discipline.
package flags

import (
	"context"
	"sync/atomic"
	"time"

	"axonflow/controlplane/internal/ports"
)

// Flags wraps a ports.FeatureFlagStore with a lock-free read snapshot.
type Flags struct {
	store    ports.FeatureFlagStore
	snapshot atomic.Pointer[map[string]bool]
}

// New builds a Flags wrapper over store.
func New(store ports.FeatureFlagStore) *Flags {
	f := &Flags{store: store}
	empty := map[string]bool{}
	f.snapshot.Store(&empty)
	return f
}

// Get reads name from the lock-free snapshot if present, else falls
// through to the backing store and updates the snapshot.
func (f *Flags) Get(ctx context.Context, name string) (bool, error) {
	snap := *f.snapshot.Load()
	if v, ok := snap[name]; ok {
		return v, nil
	}
	v, err := f.store.Get(ctx, name)
	if err != nil {
		return false, err
	}
	f.refreshOne(name, v)
	return v, nil
}

// Set writes name through to the backing store and updates the snapshot.
func (f *Flags) Set(ctx context.Context, name string, value bool, meta map[string]string) error {
	if err := f.store.Set(ctx, name, value, meta); err != nil {
		return err
	}
	f.refreshOne(name, value)
	return nil
}

func (f *Flags) refreshOne(name string, value bool) {
	for {
		old := f.snapshot.Load()
		next := make(map[string]bool, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		next[name] = value
		if f.snapshot.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Disable sets name to false; used by the Emergency Shutdown Manager to
// disable scoped flags.
func (f *Flags) Disable(ctx context.Context, name string) error {
	return f.Set(ctx, name, false, map[string]string{"reason": "emergency_shutdown", "at": time.Now().UTC().Format(time.RFC3339)})
}
