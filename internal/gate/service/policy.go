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
	"time"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
)

// DurationPolicy decides how long a trial runs and when its reminders
// fire. The duration is derived from the join time alone; users never
// choose it.
type DurationPolicy interface {
	// TrialHours returns the trial length for a join at the given time.
	TrialHours(join time.Time) int
	// ReminderOffsets returns the hours after the join at which reminder
	// notifications fire for a trial of the given length.
	ReminderOffsets(totalHours int) []int
}

// WeekendPolicy grants the longer plan when the join lands on Saturday
// or Sunday in the configured local offset, the shorter plan otherwise.
type WeekendPolicy struct {
	baseHours      int
	weekendHours   int
	baseOffsets    []int
	weekendOffsets []int
	loc            *time.Location
}

// NewWeekendPolicy builds the policy from the trial configuration.
func NewWeekendPolicy(conf *config.TrialConf) *WeekendPolicy {
	offsetSec := int(conf.TimezoneOffsetHours * 3600)
	return &WeekendPolicy{
		baseHours:      conf.BaseHours,
		weekendHours:   conf.WeekendHours,
		baseOffsets:    append([]int(nil), conf.BaseReminderOffsets...),
		weekendOffsets: append([]int(nil), conf.WeekendReminderOffsets...),
		loc:            time.FixedZone("gate-local", offsetSec),
	}
}

func (p *WeekendPolicy) TrialHours(join time.Time) int {
	switch join.In(p.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return p.weekendHours
	}
	return p.baseHours
}

func (p *WeekendPolicy) ReminderOffsets(totalHours int) []int {
	offsets := p.baseOffsets
	if totalHours == p.weekendHours {
		offsets = p.weekendOffsets
	}
	out := make([]int, 0, len(offsets))
	for _, offset := range offsets {
		// Offsets at or past the deadline never fire; drop them here so
		// the scheduler does not have to.
		if offset > 0 && offset < totalHours {
			out = append(out, offset)
		}
	}
	return out
}
