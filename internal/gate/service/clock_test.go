// Copyright 2025 Gatehouse Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardedClock_ServesForwardTime(t *testing.T) {
	inner := &fixedClock{now: wednesday}
	guarded := NewGuardedClock(inner, nil)

	assert.Equal(t, wednesday, guarded.Now())

	inner.advance(time.Minute)
	assert.Equal(t, wednesday.Add(time.Minute), guarded.Now())
}

func TestGuardedClock_ClampsBackwardJump(t *testing.T) {
	inner := &fixedClock{now: wednesday}
	var jumps []time.Time
	guarded := NewGuardedClock(inner, func(prev, reported time.Time) {
		jumps = append(jumps, prev, reported)
	})

	assert.Equal(t, wednesday, guarded.Now())

	// The wall clock steps back; the guarded reading must not.
	inner.now = wednesday.Add(-10 * time.Minute)
	assert.Equal(t, wednesday, guarded.Now())

	require.Len(t, jumps, 2)
	assert.Equal(t, wednesday, jumps[0])
	assert.Equal(t, wednesday.Add(-10*time.Minute), jumps[1])

	// Once the wall clock passes the last observation, readings resume.
	inner.now = wednesday.Add(time.Minute)
	assert.Equal(t, wednesday.Add(time.Minute), guarded.Now())
	assert.Len(t, jumps, 2, "forward movement is not a jump")
}
