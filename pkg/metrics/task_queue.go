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

package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"
	metricsprom "github.com/hashicorp/go-metrics/prometheus"
	"github.com/hibiken/asynq"

	"github.com/go-gatehouse/gatehouse/pkg/log"
)

// GoMetricsSink bridges go-metrics emitters into the server registry.
// Samples expire so a stalled collector does not freeze stale gauges
// on the scrape page.
func (s *Server) GoMetricsSink() (metrics.MetricSink, error) {
	return metricsprom.NewPrometheusSinkFrom(metricsprom.PrometheusOpts{
		Expiration: time.Minute,
		Registerer: s.registry,
	})
}

// AsynqMetricsCollector samples queue depth from an asynq inspector and
// emits it through a go-metrics sink.
type AsynqMetricsCollector struct {
	inspector *asynq.Inspector
	sink      metrics.MetricSink
	mu        sync.RWMutex
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewAsynqMetricsCollector creates a new task queue metrics collector.
func NewAsynqMetricsCollector(inspector *asynq.Inspector, sink metrics.MetricSink) *AsynqMetricsCollector {
	return &AsynqMetricsCollector{
		inspector: inspector,
		sink:      sink,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start starts collecting metrics periodically.
func (c *AsynqMetricsCollector) Start(interval time.Duration) {
	go c.collectLoop(interval)
}

// Stop stops collecting metrics.
func (c *AsynqMetricsCollector) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

func (c *AsynqMetricsCollector) collectLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(c.doneCh)

	// Collect immediately
	c.collect()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopCh:
			return
		}
	}
}

func (c *AsynqMetricsCollector) collect() {
	c.mu.RLock()
	inspector := c.inspector
	sink := c.sink
	c.mu.RUnlock()

	if inspector == nil || sink == nil {
		log.Debug("asynq inspector or sink is nil, skipping metrics collection")
		return
	}

	queues, err := inspector.Queues()
	if err != nil {
		log.Warnw("failed to list queues for metrics", "error", err)
		return
	}

	// With no queues yet, still report zeros so dashboards do not gap.
	if len(queues) == 0 {
		for _, queueName := range []string{"critical", "default", "low"} {
			c.emitZeroMetrics(sink, queueName)
		}
		return
	}

	for _, queueName := range queues {
		info, err := inspector.GetQueueInfo(queueName)
		if err != nil {
			log.Warnw("failed to get queue info", "queue", queueName, "error", err)
			c.emitZeroMetrics(sink, queueName)
			continue
		}

		labels := []metrics.Label{
			{Name: "queue", Value: queueName},
		}

		sink.SetGaugeWithLabels([]string{"asynq", "queue", "size"}, float32(info.Size), labels)
		sink.SetGaugeWithLabels([]string{"asynq", "queue", "pending"}, float32(info.Pending), labels)
		sink.SetGaugeWithLabels([]string{"asynq", "queue", "active"}, float32(info.Active), labels)
		sink.SetGaugeWithLabels([]string{"asynq", "queue", "scheduled"}, float32(info.Scheduled), labels)
		sink.SetGaugeWithLabels([]string{"asynq", "queue", "retry"}, float32(info.Retry), labels)
		sink.SetGaugeWithLabels([]string{"asynq", "queue", "archived"}, float32(info.Archived), labels)
		sink.SetGaugeWithLabels([]string{"asynq", "queue", "completed"}, float32(info.Completed), labels)
		sink.SetGaugeWithLabels([]string{"asynq", "queue", "aggregating"}, float32(info.Aggregating), labels)

		// Processed and Failed are cumulative on the asynq side, exported
		// here as gauges of the running total.
		sink.SetGaugeWithLabels([]string{"asynq", "queue", "processed", "total"}, float32(info.Processed), labels)
		sink.SetGaugeWithLabels([]string{"asynq", "queue", "failed", "total"}, float32(info.Failed), labels)
	}
}

func (c *AsynqMetricsCollector) emitZeroMetrics(sink metrics.MetricSink, queueName string) {
	labels := []metrics.Label{
		{Name: "queue", Value: queueName},
	}

	sink.SetGaugeWithLabels([]string{"asynq", "queue", "size"}, 0, labels)
	sink.SetGaugeWithLabels([]string{"asynq", "queue", "pending"}, 0, labels)
	sink.SetGaugeWithLabels([]string{"asynq", "queue", "active"}, 0, labels)
	sink.SetGaugeWithLabels([]string{"asynq", "queue", "scheduled"}, 0, labels)
	sink.SetGaugeWithLabels([]string{"asynq", "queue", "retry"}, 0, labels)
	sink.SetGaugeWithLabels([]string{"asynq", "queue", "archived"}, 0, labels)
	sink.SetGaugeWithLabels([]string{"asynq", "queue", "completed"}, 0, labels)
	sink.SetGaugeWithLabels([]string{"asynq", "queue", "aggregating"}, 0, labels)
	sink.SetGaugeWithLabels([]string{"asynq", "queue", "processed", "total"}, 0, labels)
	sink.SetGaugeWithLabels([]string{"asynq", "queue", "failed", "total"}, 0, labels)
}

var (
	asynqMetricsOnce sync.Once
	asynqCollector   *AsynqMetricsCollector
)

// SetupAsynqMetrics starts task queue metrics collection on a 15 second
// sampling interval.
func SetupAsynqMetrics(sink metrics.MetricSink, inspector *asynq.Inspector) error {
	if inspector == nil || sink == nil {
		return nil
	}

	collector := NewAsynqMetricsCollector(inspector, sink)
	collector.Start(15 * time.Second)
	asynqCollector = collector
	return nil
}

// RegisterAsynqMetrics registers the task queue metrics collector once.
func RegisterAsynqMetrics(sink metrics.MetricSink, inspector *asynq.Inspector) error {
	if sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if inspector == nil {
		return fmt.Errorf("inspector is nil")
	}

	var err error
	asynqMetricsOnce.Do(func() {
		err = SetupAsynqMetrics(sink, inspector)
		if err != nil {
			log.Errorw("failed to setup task queue metrics", "error", err)
		}
	})
	return err
}

// RegisterAsynqMetricsFrom registers task queue metrics from anything
// that exposes its redis connection, such as the queue client or server
// wrappers. The interface assertion keeps this package decoupled from
// the queue implementation.
func RegisterAsynqMetricsFrom(sink metrics.MetricSink, source interface{}) {
	if sink == nil {
		log.Warn("metrics sink is nil, cannot register task queue metrics")
		return
	}
	if source == nil {
		log.Warn("queue source is nil, cannot register task queue metrics")
		return
	}

	redisHolder, ok := source.(interface {
		GetRedisConnOpt() asynq.RedisConnOpt
	})
	if !ok {
		log.Warn("queue source does not expose GetRedisConnOpt")
		return
	}

	redisOpt := redisHolder.GetRedisConnOpt()
	if redisOpt == nil {
		log.Warn("redis connection option is nil")
		return
	}

	inspector := asynq.NewInspector(redisOpt)
	if err := RegisterAsynqMetrics(sink, inspector); err != nil {
		log.Errorw("failed to register task queue metrics", "error", err)
	}
}

// StopAsynqMetricsCollector stops the task queue metrics collector.
func StopAsynqMetricsCollector(ctx context.Context) error {
	if asynqCollector == nil {
		return nil
	}

	asynqCollector.Stop()
	return nil
}
