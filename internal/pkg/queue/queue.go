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
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/go-gatehouse/gatehouse/pkg/log"
)

// TaskQueue is the asynq-backed scheduler for trial lifecycle work.
// Gatehouse runs producer and consumer in the same process: the grant
// path enqueues reminder and expiry tasks, the sched handlers consume
// them.
type TaskQueue struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
	config    *Config
	handlers  map[string]TaskHandler
	redisOpt  asynq.RedisConnOpt
}

// Config holds queue settings.
type Config struct {
	RedisClient     redis.UniversalClient
	Concurrency     int
	StrictPriority  bool
	Queues          map[string]int // queue name -> priority weight
	DefaultQueue    string
	LogLevel        string // debug, info, warn, error
	ShutdownTimeout int    // seconds
}

// TaskPayload is the wire form of a scheduled lifecycle task.
type TaskPayload struct {
	TaskID      string         `json:"task_id"`
	TaskType    string         `json:"task_type"`
	Identity    string         `json:"identity"`
	ChatID      int64          `json:"chat_id,omitempty"`
	GrantedAt   int64          `json:"granted_at,omitempty"`
	ExpiresAt   int64          `json:"expires_at,omitempty"`
	OffsetHours int            `json:"offset_hours,omitempty"`
	RetryCount  int            `json:"retry_count,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// TaskHandler processes one dequeued task.
type TaskHandler interface {
	HandleTask(ctx context.Context, payload *TaskPayload) error
}

// TaskHandlerFunc adapts a func into a TaskHandler.
type TaskHandlerFunc func(ctx context.Context, payload *TaskPayload) error

func (f TaskHandlerFunc) HandleTask(ctx context.Context, payload *TaskPayload) error {
	return f(ctx, payload)
}

// Task types.
const (
	TaskTypeTrialReminder = "trial:reminder" // expiry warning message
	TaskTypeTrialExpiry   = "trial:expiry"   // trial end, member removal
)

// Queue names.
const (
	Critical = "critical" // expiries; removal must not lag
	Default  = "default"  // reminders
	Low      = "low"      // housekeeping
)

// defaultTaskTimeout bounds a single handler run. Handlers only make a
// few bot API calls and database writes.
const defaultTaskTimeout = 2 * time.Minute

// ExpiryTaskID returns the stable task id for a trial's expiry. Stable
// ids make the startup reconstruction pass a no-op for tasks that are
// already scheduled instead of a duplicate.
func ExpiryTaskID(identity string, grantedAtUnix int64) string {
	return fmt.Sprintf("expiry:%s:%d", identity, grantedAtUnix)
}

// ReminderTaskID returns the stable task id for one reminder offset of
// a trial.
func ReminderTaskID(identity string, grantedAtUnix int64, offsetHours int) string {
	return fmt.Sprintf("reminder:%s:%d:%d", identity, grantedAtUnix, offsetHours)
}

// NewTaskQueue creates the task queue on an existing redis client.
func NewTaskQueue(cfg *Config) (*TaskQueue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("queue config is required")
	}
	if cfg.RedisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	redisOpt := &redisConnOptWrapper{client: cfg.RedisClient}

	client := asynq.NewClient(redisOpt)

	queues := cfg.Queues
	if len(queues) == 0 {
		queues = map[string]int{
			Critical: 6,
			Default:  3,
			Low:      1,
		}
	}

	var logLevel asynq.LogLevel
	if cfg.LogLevel != "" {
		if err := logLevel.Set(cfg.LogLevel); err != nil {
			log.Warnw("invalid log level, using default info", "logLevel", cfg.LogLevel, "error", err)
			logLevel = asynq.InfoLevel
		}
	} else {
		logLevel = asynq.InfoLevel
	}

	shutdownTimeout := 10 * time.Second
	if cfg.ShutdownTimeout > 0 {
		shutdownTimeout = time.Duration(cfg.ShutdownTimeout) * time.Second
	}

	serverConfig := asynq.Config{
		Concurrency:     cfg.Concurrency,
		StrictPriority:  cfg.StrictPriority,
		Queues:          queues,
		Logger:          &asynqLoggerAdapter{},
		LogLevel:        logLevel,
		RetryDelayFunc:  asynq.DefaultRetryDelayFunc,
		ShutdownTimeout: shutdownTimeout,
	}

	server := asynq.NewServer(redisOpt, serverConfig)
	mux := asynq.NewServeMux()
	inspector := asynq.NewInspector(redisOpt)

	queue := &TaskQueue{
		client:    client,
		server:    server,
		mux:       mux,
		inspector: inspector,
		config:    cfg,
		handlers:  make(map[string]TaskHandler),
		redisOpt:  redisOpt,
	}

	log.Infow("task queue created",
		"concurrency", cfg.Concurrency,
		"queues", queues,
	)

	return queue, nil
}

// RegisterHandler registers a handler for the given task type.
func (q *TaskQueue) RegisterHandler(taskType string, handler TaskHandler) {
	q.handlers[taskType] = handler

	q.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		var taskPayload TaskPayload
		if err := sonic.Unmarshal(t.Payload(), &taskPayload); err != nil {
			return fmt.Errorf("unmarshal task payload: %w", err)
		}

		log.Infow("processing task",
			"task_id", taskPayload.TaskID,
			"task_type", taskPayload.TaskType,
			"identity", taskPayload.Identity,
		)

		if err := handler.HandleTask(ctx, &taskPayload); err != nil {
			log.Errorw("task failed",
				"task_id", taskPayload.TaskID,
				"task_type", taskPayload.TaskType,
				"error", err,
			)
			return err
		}
		return nil
	})

	log.Infow("task handler registered", "task_type", taskType)
}

// RegisterHandlerFunc registers a handler func for the given task type.
func (q *TaskQueue) RegisterHandlerFunc(taskType string, handlerFunc TaskHandlerFunc) {
	q.RegisterHandler(taskType, handlerFunc)
}

// Enqueue enqueues a task for immediate processing.
func (q *TaskQueue) Enqueue(payload *TaskPayload, queueName string) error {
	return q.enqueue(payload, queueName, time.Time{})
}

// EnqueueAt enqueues a task for processing at the given time. A task
// whose id is already queued is treated as scheduled, not an error.
func (q *TaskQueue) EnqueueAt(payload *TaskPayload, at time.Time, queueName string) error {
	return q.enqueue(payload, queueName, at)
}

func (q *TaskQueue) enqueue(payload *TaskPayload, queueName string, at time.Time) error {
	if payload == nil {
		return fmt.Errorf("task payload is required")
	}

	data, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}

	if queueName == "" {
		queueName = q.config.DefaultQueue
		if queueName == "" {
			queueName = Default
		}
	}

	task := asynq.NewTask(payload.TaskType, data)

	opts := []asynq.Option{
		asynq.Queue(queueName),
		asynq.MaxRetry(payload.RetryCount),
		asynq.Timeout(defaultTaskTimeout),
	}
	if payload.TaskID != "" {
		opts = append(opts, asynq.TaskID(payload.TaskID))
	}
	if !at.IsZero() {
		opts = append(opts, asynq.ProcessAt(at))
	}

	info, err := q.client.Enqueue(task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			log.Debugw("task already scheduled",
				"task_id", payload.TaskID,
				"task_type", payload.TaskType,
			)
			return nil
		}
		return fmt.Errorf("enqueue task: %w", err)
	}

	log.Infow("task enqueued",
		"task_id", payload.TaskID,
		"task_type", payload.TaskType,
		"queue", info.Queue,
		"process_at", info.NextProcessAt,
	)

	return nil
}

// Cancel removes a scheduled task by id. A missing task is not an
// error; callers cancel timers that may have already fired.
func (q *TaskQueue) Cancel(queueName, taskID string) error {
	if queueName == "" {
		queueName = q.config.DefaultQueue
		if queueName == "" {
			queueName = Default
		}
	}

	err := q.inspector.DeleteTask(queueName, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil
		}
		return fmt.Errorf("cancel task %s: %w", taskID, err)
	}

	log.Infow("task cancelled", "task_id", taskID, "queue", queueName)
	return nil
}

// Start starts the consumer without blocking.
func (q *TaskQueue) Start() error {
	log.Info("starting task queue server")
	return q.server.Start(q.mux)
}

// Run starts the consumer and blocks until a shutdown signal.
func (q *TaskQueue) Run() error {
	log.Info("running task queue server")
	return q.server.Run(q.mux)
}

// Shutdown stops the consumer and closes the producer.
func (q *TaskQueue) Shutdown() {
	log.Info("shutting down task queue server")

	q.server.Shutdown()

	if err := q.inspector.Close(); err != nil {
		log.Warnw("error closing asynq inspector", "error", err)
	}
	if err := q.client.Close(); err != nil {
		log.Warnw("error closing asynq client", "error", err)
	}
}

// GetClient returns the underlying asynq client.
func (q *TaskQueue) GetClient() *asynq.Client {
	return q.client
}

// GetServer returns the underlying asynq server.
func (q *TaskQueue) GetServer() *asynq.Server {
	return q.server
}

// GetRedisConnOpt returns the redis connection option, used to build
// inspectors for metrics.
func (q *TaskQueue) GetRedisConnOpt() asynq.RedisConnOpt {
	return q.redisOpt
}

// redisConnOptWrapper adapts an existing redis client to the asynq
// RedisConnOpt interface.
type redisConnOptWrapper struct {
	client redis.UniversalClient
}

func (r *redisConnOptWrapper) MakeRedisClient() interface{} {
	return r.client
}
