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

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequest_WithPromptLeavesOriginalUntouched(t *testing.T) {
	orig := Request{ID: "r1", Prompt: "original"}
	modified := orig.WithPrompt("redacted")

	assert.Equal(t, "original", orig.Prompt)
	assert.Equal(t, "redacted", modified.Prompt)
	assert.Equal(t, orig.ID, modified.ID)
}

func TestResponse_WithContentLeavesOriginalUntouched(t *testing.T) {
	orig := Response{Content: "original", Provider: "direct"}
	modified := orig.WithContent("redacted")

	assert.Equal(t, "original", orig.Content)
	assert.Equal(t, "redacted", modified.Content)
	assert.Equal(t, orig.Provider, modified.Provider)
}
