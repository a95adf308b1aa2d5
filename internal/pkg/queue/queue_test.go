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

package queue

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestConfig() *Config {
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})

	return &Config{
		RedisClient:     redisClient,
		Concurrency:     2,
		StrictPriority:  false,
		Queues:          map[string]int{Critical: 6, Default: 3, Low: 1},
		DefaultQueue:    Default,
		LogLevel:        "info",
		ShutdownTimeout: 10,
	}
}

func TestNewTaskQueue(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: true,
			errMsg:  "queue config is required",
		},
		{
			name:    "nil redis client",
			cfg:     &Config{RedisClient: nil},
			wantErr: true,
			errMsg:  "redis client is required",
		},
		{
			name:    "valid config",
			cfg:     createTestConfig(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewTaskQueue(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
				assert.Nil(t, q)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, q)
				assert.NotNil(t, q.client)
				assert.NotNil(t, q.server)
				assert.NotNil(t, q.mux)
				assert.NotNil(t, q.inspector)
				assert.NotNil(t, q.handlers)
			}
		})
	}
}

func TestTaskQueue_RegisterHandler(t *testing.T) {
	q, err := NewTaskQueue(createTestConfig())
	require.NoError(t, err)

	handler := TaskHandlerFunc(func(ctx context.Context, payload *TaskPayload) error {
		return nil
	})

	q.RegisterHandler(TaskTypeTrialExpiry, handler)
	assert.NotNil(t, q.handlers[TaskTypeTrialExpiry])

	q.RegisterHandlerFunc(TaskTypeTrialReminder, func(ctx context.Context, payload *TaskPayload) error {
		return nil
	})
	assert.NotNil(t, q.handlers[TaskTypeTrialReminder])
}

func TestTaskQueue_EnqueueNilPayload(t *testing.T) {
	q, err := NewTaskQueue(createTestConfig())
	require.NoError(t, err)

	err = q.Enqueue(nil, Default)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "task payload is required")
}

func TestTaskQueue_GetRedisConnOpt(t *testing.T) {
	q, err := NewTaskQueue(createTestConfig())
	require.NoError(t, err)

	redisOpt := q.GetRedisConnOpt()
	assert.NotNil(t, redisOpt)
	assert.NotNil(t, redisOpt.MakeRedisClient())
}

func TestExpiryTaskID(t *testing.T) {
	id := ExpiryTaskID("483920175", 1767225600)
	assert.Equal(t, "expiry:483920175:1767225600", id)

	// The same trial always maps to the same task id.
	assert.Equal(t, id, ExpiryTaskID("483920175", 1767225600))

	// A regrant after cooldown carries a new granted-at and so a new id.
	assert.NotEqual(t, id, ExpiryTaskID("483920175", 1769904000))
}

func TestReminderTaskID(t *testing.T) {
	id24 := ReminderTaskID("483920175", 1767225600, 24)
	id48 := ReminderTaskID("483920175", 1767225600, 48)

	assert.Equal(t, "reminder:483920175:1767225600:24", id24)
	assert.NotEqual(t, id24, id48)

	// Offsets keep ids distinct per member and per trial.
	assert.NotEqual(t, id24, ReminderTaskID("520114839", 1767225600, 24))
	assert.NotEqual(t, id24, ReminderTaskID("483920175", 1769904000, 24))
}

func TestTaskHandlerFunc(t *testing.T) {
	called := false
	handler := TaskHandlerFunc(func(ctx context.Context, payload *TaskPayload) error {
		called = true
		assert.Equal(t, "483920175", payload.Identity)
		return nil
	})

	err := handler.HandleTask(context.Background(), &TaskPayload{Identity: "483920175"})
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "trial:reminder", TaskTypeTrialReminder)
	assert.Equal(t, "trial:expiry", TaskTypeTrialExpiry)

	assert.Equal(t, "critical", Critical)
	assert.Equal(t, "default", Default)
	assert.Equal(t, "low", Low)
}
