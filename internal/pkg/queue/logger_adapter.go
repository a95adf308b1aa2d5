package queue

import (
	"github.com/go-gatehouse/gatehouse/pkg/log"
)

// asynqLoggerAdapter routes asynq's logger interface to pkg/log.
type asynqLoggerAdapter struct{}

func (l *asynqLoggerAdapter) Debug(args ...any) {
	log.Debug(args...)
}

func (l *asynqLoggerAdapter) Info(args ...any) {
	log.Info(args...)
}

func (l *asynqLoggerAdapter) Warn(args ...any) {
	log.Warn(args...)
}

func (l *asynqLoggerAdapter) Error(args ...any) {
	log.Error(args...)
}

func (l *asynqLoggerAdapter) Fatal(args ...any) {
	log.Fatal(args...)
}
