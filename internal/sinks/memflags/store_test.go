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

package memflags

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_UnsetFlagDefaultsFalse(t *testing.T) {
	s := New(nil)
	v, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, v)
}

func TestNew_SeedsDefaults(t *testing.T) {
	s := New(map[string]bool{"a": true, "b": false})
	v, _ := s.Get(context.Background(), "a")
	assert.True(t, v)
	v2, _ := s.Get(context.Background(), "b")
	assert.False(t, v2)
}

func TestSet_UpdatesValueAndEmitsChange(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Set(context.Background(), "x", true, nil))

	v, _ := s.Get(context.Background(), "x")
	assert.True(t, v)

	select {
	case change := <-s.Changes():
		assert.Equal(t, "x", change.Name)
		assert.True(t, change.Value)
	default:
		t.Fatal("expected a FlagChange on the changes channel")
	}
}

func TestSet_FullChannelDoesNotBlock(t *testing.T) {
	s := New(nil)
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Set(context.Background(), "flood", i%2 == 0, nil))
	}
	v, _ := s.Get(context.Background(), "flood")
	assert.False(t, v) // last write, i=99, 99%2!=0
}
