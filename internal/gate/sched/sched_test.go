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

package sched

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-gatehouse/gatehouse/internal/pkg/queue"
)

func TestBind_RegistersHandlers(t *testing.T) {
	env := newSchedEnv()

	assert.Contains(t, env.backend.handlers, queue.TaskTypeTrialReminder)
	assert.Contains(t, env.backend.handlers, queue.TaskTypeTrialExpiry)
}

func TestScheduleTrial_QueuesRemindersAndExpiry(t *testing.T) {
	env := newSchedEnv()
	trial := env.addTrial(1001, baseTime, 72)

	require.NoError(t, env.sched.ScheduleTrial(context.Background(), trial))

	reminders := env.backend.byType(queue.TaskTypeTrialReminder)
	require.Len(t, reminders, 2)
	first := reminders[0]
	assert.Equal(t, queue.ReminderTaskID("1001", baseTime.Unix(), 24), first.payload.TaskID)
	assert.Equal(t, "1001", first.payload.Identity)
	assert.Equal(t, baseTime.Unix(), first.payload.GrantedAt)
	assert.Equal(t, trial.TrialEndAt.Unix(), first.payload.ExpiresAt)
	assert.Equal(t, 24, first.payload.OffsetHours)
	assert.Equal(t, queue.Default, first.queue)
	assert.True(t, first.at.Equal(baseTime.Add(24*time.Hour)))
	assert.Zero(t, first.payload.RetryCount)
	assert.Equal(t, 48, reminders[1].payload.OffsetHours)

	expiries := env.backend.byType(queue.TaskTypeTrialExpiry)
	require.Len(t, expiries, 1)
	assert.Equal(t, queue.ExpiryTaskID("1001", baseTime.Unix()), expiries[0].payload.TaskID)
	assert.Equal(t, queue.Critical, expiries[0].queue)
	assert.True(t, expiries[0].at.Equal(trial.TrialEndAt))
}

func TestScheduleTrial_WeekendTrialGetsExtraReminders(t *testing.T) {
	env := newSchedEnv()
	trial := env.addTrial(1001, baseTime, 120)

	require.NoError(t, env.sched.ScheduleTrial(context.Background(), trial))

	reminders := env.backend.byType(queue.TaskTypeTrialReminder)
	require.Len(t, reminders, 3)
	var offsets []int
	for _, r := range reminders {
		offsets = append(offsets, r.payload.OffsetHours)
	}
	assert.Equal(t, []int{24, 72, 96}, offsets)
}

func TestScheduleTrial_SkipsElapsedReminders(t *testing.T) {
	env := newSchedEnv()
	trial := env.addTrial(1001, baseTime.Add(-50*time.Hour), 72)

	require.NoError(t, env.sched.ScheduleTrial(context.Background(), trial))

	assert.Empty(t, env.backend.byType(queue.TaskTypeTrialReminder))
	expiries := env.backend.byType(queue.TaskTypeTrialExpiry)
	require.Len(t, expiries, 1)
	assert.True(t, expiries[0].at.Equal(baseTime.Add(22*time.Hour)))
}

func TestScheduleTrial_DueNowReminderIsSkipped(t *testing.T) {
	env := newSchedEnv()
	trial := env.addTrial(1001, baseTime.Add(-24*time.Hour), 72)

	require.NoError(t, env.sched.ScheduleTrial(context.Background(), trial))

	reminders := env.backend.byType(queue.TaskTypeTrialReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, 48, reminders[0].payload.OffsetHours)
}

func TestScheduleTrial_ReminderFailureStillQueuesExpiry(t *testing.T) {
	env := newSchedEnv()
	env.backend.failType = queue.TaskTypeTrialReminder
	env.backend.failErr = errors.New("redis down")
	trial := env.addTrial(1001, baseTime, 72)

	err := env.sched.ScheduleTrial(context.Background(), trial)

	require.Error(t, err)
	assert.Empty(t, env.backend.byType(queue.TaskTypeTrialReminder))
	assert.Len(t, env.backend.byType(queue.TaskTypeTrialExpiry), 1)
}
