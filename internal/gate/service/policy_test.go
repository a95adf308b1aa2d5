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
)

func TestWeekendPolicy_TrialHours(t *testing.T) {
	policy := NewWeekendPolicy(&testConfig().Trial)

	cases := []struct {
		name string
		join time.Time
		want int
	}{
		{"wednesday", time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC), 72},
		{"friday evening", time.Date(2025, 3, 14, 21, 0, 0, 0, time.UTC), 72},
		{"saturday", time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), 120},
		{"sunday night", time.Date(2025, 3, 16, 23, 59, 0, 0, time.UTC), 120},
		{"monday", time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC), 72},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, policy.TrialHours(tc.join))
		})
	}
}

func TestWeekendPolicy_HonorsConfiguredOffset(t *testing.T) {
	conf := testConfig().Trial
	conf.TimezoneOffsetHours = 3
	policy := NewWeekendPolicy(&conf)

	// Friday 22:30 UTC is already Saturday 01:30 at UTC+3.
	assert.Equal(t, 120, policy.TrialHours(time.Date(2025, 3, 14, 22, 30, 0, 0, time.UTC)))
	// Sunday 22:30 UTC is Monday at UTC+3.
	assert.Equal(t, 72, policy.TrialHours(time.Date(2025, 3, 16, 22, 30, 0, 0, time.UTC)))
}

func TestWeekendPolicy_ReminderOffsets(t *testing.T) {
	policy := NewWeekendPolicy(&testConfig().Trial)

	assert.Equal(t, []int{24, 48}, policy.ReminderOffsets(72))
	assert.Equal(t, []int{24, 72, 96}, policy.ReminderOffsets(120))
}

func TestWeekendPolicy_DropsOffsetsPastDeadline(t *testing.T) {
	conf := testConfig().Trial
	conf.BaseReminderOffsets = []int{24, 48, 72, 90}
	policy := NewWeekendPolicy(&conf)

	assert.Equal(t, []int{24, 48}, policy.ReminderOffsets(72))
}
