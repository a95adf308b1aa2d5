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
	"sync"
	"time"

	"github.com/go-gatehouse/gatehouse/pkg/log"
)

// Clock supplies the current time. Tests inject a fixed one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// NewSystemClock returns the wall clock.
func NewSystemClock() Clock {
	return systemClock{}
}

// GuardedClock wraps another clock and refuses to move backwards. Every
// time the wrapped clock regresses (an operator stepping the host clock,
// a bad NTP jump) the last known good time is served instead, the event
// is logged at error level and the optional hook fires once per jump.
// Trial deadlines and signatures are computed from these values, so a
// backwards step must never shorten or extend anything already written.
type GuardedClock struct {
	mu     sync.Mutex
	inner  Clock
	last   time.Time
	onJump func(prev, reported time.Time)
}

// NewGuardedClock wraps inner. onJump may be nil.
func NewGuardedClock(inner Clock, onJump func(prev, reported time.Time)) *GuardedClock {
	return &GuardedClock{inner: inner, onJump: onJump}
}

func (g *GuardedClock) Now() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.inner.Now()
	if !g.last.IsZero() && now.Before(g.last) {
		log.Errorw("clock moved backwards, clamping to last observed time",
			"reported", now, "lastObserved", g.last, "jump", g.last.Sub(now))
		if g.onJump != nil {
			g.onJump(g.last, now)
		}
		return g.last
	}
	g.last = now
	return now
}
