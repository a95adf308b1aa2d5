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
	"math"
	"strconv"

	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/pkg/queue"
	"github.com/go-gatehouse/gatehouse/pkg/log"
)

// handleReminder re-checks the stored trial immediately before
// messaging. The task is dropped when the trial is gone, no longer
// verifies, belongs to a different join, or is already past its
// deadline; a queued task is a hint, never a promise.
func (s *Scheduler) handleReminder(ctx context.Context, payload *queue.TaskPayload) error {
	identity, err := strconv.ParseInt(payload.Identity, 10, 64)
	if err != nil {
		log.Errorw("reminder task carries a malformed identity", "identity", payload.Identity, "error", err)
		return nil
	}
	trial, err := s.trials.GetActiveTrial(ctx, identity)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	switch {
	case trial == nil:
		return nil
	case trial.JoinTime.Unix() != payload.GrantedAt:
		log.Debugw("reminder dropped, trial superseded", "identity", identity)
		return nil
	case trial.Expired(now):
		return nil
	}
	remaining := int(math.Round(trial.Remaining(now).Hours()))
	if remaining < 1 {
		remaining = 1
	}
	if err := s.notifier.Reminder(ctx, identity, remaining); err != nil {
		log.Warnw("reminder delivery failed", "identity", identity, "error", err)
	}
	return nil
}

// handleExpiry settles the trial the task was queued for. A mismatched
// join time means the task belongs to an earlier trial of the same
// identity and is dropped. A deadline still in the future is re-queued
// rather than settled early; if that fails the sweep picks it up.
func (s *Scheduler) handleExpiry(ctx context.Context, payload *queue.TaskPayload) error {
	identity, err := strconv.ParseInt(payload.Identity, 10, 64)
	if err != nil {
		log.Errorw("expiry task carries a malformed identity", "identity", payload.Identity, "error", err)
		return nil
	}
	trial, err := s.trials.GetActiveTrial(ctx, identity)
	if err != nil {
		return err
	}
	if trial == nil || trial.JoinTime.Unix() != payload.GrantedAt {
		return nil
	}
	if now := s.clock.Now(); !trial.Expired(now) {
		log.Warnw("expiry fired before the deadline", "identity", identity, "deadline", trial.TrialEndAt)
		if err := s.backend.EnqueueAt(payload, trial.TrialEndAt, queue.Critical); err != nil {
			log.Errorw("failed to re-queue early expiry", "identity", identity, "error", err)
		}
		return nil
	}
	_, err = s.lifecycle.Terminate(ctx, identity, model.EndReasonExpired, "expiry")
	return err
}
