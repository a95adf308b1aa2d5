package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// QueueStats reports per-queue depth for the ops surface.
type QueueStats struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Scheduled int `json:"scheduled"`
	Retry     int `json:"retry"`
	Archived  int `json:"archived"`
	Completed int `json:"completed"`
}

// Stats returns depth counters for every known queue.
func (q *TaskQueue) Stats(ctx context.Context) (map[string]QueueStats, error) {
	queues, err := q.inspector.Queues()
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}

	stats := make(map[string]QueueStats, len(queues))
	for _, name := range queues {
		info, err := q.inspector.GetQueueInfo(name)
		if err != nil {
			continue
		}
		stats[name] = QueueStats{
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Completed: info.Completed,
		}
	}
	return stats, nil
}

// TaskState reports the asynq state of the given task id, or "absent"
// when the task is unknown. A scheduled task that already ran reports
// absent as well; callers treat that as done.
func (q *TaskQueue) TaskState(queueName, taskID string) (string, error) {
	if queueName == "" {
		queueName = q.config.DefaultQueue
		if queueName == "" {
			queueName = Default
		}
	}

	info, err := q.inspector.GetTaskInfo(queueName, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return "absent", nil
		}
		return "", err
	}
	return info.State.String(), nil
}
