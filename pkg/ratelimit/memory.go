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

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/safe"
)

const janitorInterval = 10 * time.Minute

// MemoryLimiter is an in-process sliding-window limiter. Events per
// (rule, key) pair are pruned on access, a background janitor drops
// idle keys.
type MemoryLimiter struct {
	mu     sync.Mutex
	rules  map[string]Rule
	events map[string][]time.Time

	nowFunc  func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// MemoryOption customizes a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock replaces the time source, used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLimiter) {
		m.nowFunc = now
	}
}

func NewMemoryLimiter(rules map[string]Rule, opts ...MemoryOption) *MemoryLimiter {
	m := &MemoryLimiter{
		rules:    rules,
		events:   make(map[string][]time.Time),
		nowFunc:  time.Now,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	safe.Go(func() {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.cleanup()
			case <-m.stopChan:
				return
			}
		}
	})

	return m
}

// Allow prunes expired events for the key, then admits the event if the
// rule's limit is not reached.
func (m *MemoryLimiter) Allow(ctx context.Context, rule, key string) (Result, error) {
	r, ok := m.rules[rule]
	if !ok || r.Limit <= 0 || r.Window <= 0 {
		log.Warnw("unknown rate limit rule, allowing", "rule", rule)
		return allowAll, nil
	}

	now := m.nowFunc()
	bucket := rule + ":" + key

	m.mu.Lock()
	defer m.mu.Unlock()

	cut := now.Add(-r.Window)
	dst := m.events[bucket][:0]
	for _, t := range m.events[bucket] {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	m.events[bucket] = dst

	if len(dst) >= r.Limit {
		// events are ordered, the oldest one leaves the window first
		retryAfter := dst[0].Add(r.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	m.events[bucket] = append(dst, now)
	return Result{Allowed: true, Remaining: r.Limit - len(m.events[bucket])}, nil
}

// cleanup drops buckets whose newest event is older than every rule window.
func (m *MemoryLimiter) cleanup() {
	var maxWindow time.Duration
	for _, r := range m.rules {
		if r.Window > maxWindow {
			maxWindow = r.Window
		}
	}

	now := m.nowFunc()
	cut := now.Add(-maxWindow)

	m.mu.Lock()
	defer m.mu.Unlock()
	for bucket, events := range m.events {
		if len(events) == 0 || !events[len(events)-1].After(cut) {
			delete(m.events, bucket)
		}
	}
}

// Stop terminates the janitor goroutine.
func (m *MemoryLimiter) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}
