package queue

import (
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
)

// ProviderSet provides the task queue dependencies.
var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideTaskQueue,
)

// ProvideConfig builds the queue config from app config.
func ProvideConfig(appConf *config.AppConfig, redisClient *redis.Client) *Config {
	queueConf := appConf.Queue

	queues := queueConf.Priority
	if len(queues) == 0 {
		queues = map[string]int{
			Critical: 6,
			Default:  3,
			Low:      1,
		}
	}

	concurrency := queueConf.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	return &Config{
		RedisClient:     redisClient,
		Concurrency:     concurrency,
		StrictPriority:  queueConf.StrictPriority,
		Queues:          queues,
		DefaultQueue:    Default,
		LogLevel:        queueConf.LogLevel,
		ShutdownTimeout: queueConf.ShutdownTimeout,
	}
}

// ProvideTaskQueue builds the task queue.
func ProvideTaskQueue(cfg *Config) (*TaskQueue, error) {
	return NewTaskQueue(cfg)
}
