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

// Package sched owns the delayed side of the trial lifecycle: the
// reminder and expiry tasks queued when a trial starts, the startup
// reconciliation that rebuilds them from the stored rows, and the
// hourly sweep that repairs whatever both of those missed. The stored
// trial row is always the authority; tasks only decide when to look.
package sched

import (
	"context"
	"strconv"
	"time"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
	"github.com/go-gatehouse/gatehouse/internal/gate/service"
	"github.com/go-gatehouse/gatehouse/internal/pkg/queue"
	"github.com/go-gatehouse/gatehouse/pkg/log"
)

// TaskBackend is the slice of the task queue the scheduler uses:
// delayed enqueue under deterministic ids, and handler registration.
// *queue.TaskQueue satisfies it.
type TaskBackend interface {
	EnqueueAt(payload *queue.TaskPayload, at time.Time, queueName string) error
	RegisterHandlerFunc(taskType string, handlerFunc queue.TaskHandlerFunc)
}

// TrialLifecycle is the slice of the trial service the tasks and the
// sweep settle trials through. *service.TrialService satisfies it.
type TrialLifecycle interface {
	Terminate(ctx context.Context, identity int64, reason, trigger string) (*model.ActiveTrial, error)
}

// ReminderSender delivers the remaining-time reminders.
// *service.Notifier satisfies it.
type ReminderSender interface {
	Reminder(ctx context.Context, identity int64, remainingHours int) error
}

// Scheduler queues the per-trial tasks and drives the repair passes.
// The trial service depends on the scheduler to queue tasks at grant
// time, and the task handlers call back into the trial service, so the
// service side is attached late via Bind.
type Scheduler struct {
	backend  TaskBackend
	trials   repo.ITrialRepository
	pendings repo.IPendingRepository
	invites  repo.IInviteRepository
	audits   repo.IAuditRepository
	sealer   *model.Sealer
	policy   service.DurationPolicy
	clock    service.Clock
	conf     *config.TrialConf

	lifecycle TrialLifecycle
	notifier  ReminderSender
}

func NewScheduler(
	backend TaskBackend,
	repos *repo.Repositories,
	sealer *model.Sealer,
	conf *config.TrialConf,
	clock service.Clock,
) *Scheduler {
	return &Scheduler{
		backend:  backend,
		trials:   repos.Trial,
		pendings: repos.Pending,
		invites:  repos.Invite,
		audits:   repos.Audit,
		sealer:   sealer,
		policy:   service.NewWeekendPolicy(conf),
		clock:    clock,
		conf:     conf,
	}
}

// Bind attaches the services the tasks call back into and registers
// the task handlers on the queue. It must run before the queue starts
// consuming and before Reconcile or the sweep are used; registering
// inside Bind guarantees no handler ever observes the unbound state.
func (s *Scheduler) Bind(lifecycle TrialLifecycle, notifier ReminderSender) {
	s.lifecycle = lifecycle
	s.notifier = notifier
	s.backend.RegisterHandlerFunc(queue.TaskTypeTrialReminder, s.handleReminder)
	s.backend.RegisterHandlerFunc(queue.TaskTypeTrialExpiry, s.handleExpiry)
}

// ScheduleTrial queues the reminder and expiry tasks for a trial. Task
// ids derive from the identity and the join time, so scheduling the
// same trial twice collapses into the set already queued, and tasks
// from an earlier trial of the same identity can never be mistaken for
// the current one.
func (s *Scheduler) ScheduleTrial(ctx context.Context, trial *model.ActiveTrial) error {
	return s.enqueueTrialTasks(trial, s.clock.Now())
}

// enqueueTrialTasks queues the not-yet-due reminders and the expiry.
// Reminders that should already have fired are skipped, never sent
// late. A reminder enqueue failure does not stop the expiry from being
// queued; tasks run with zero automatic retries because the sweep is
// the retry.
func (s *Scheduler) enqueueTrialTasks(trial *model.ActiveTrial, now time.Time) error {
	identity := strconv.FormatInt(trial.Identity, 10)
	granted := trial.JoinTime.Unix()

	var firstErr error
	for _, offset := range s.policy.ReminderOffsets(trial.TotalHours) {
		fireAt := trial.JoinTime.Add(time.Duration(offset) * time.Hour)
		if !fireAt.After(now) {
			continue
		}
		payload := &queue.TaskPayload{
			TaskID:      queue.ReminderTaskID(identity, granted, offset),
			TaskType:    queue.TaskTypeTrialReminder,
			Identity:    identity,
			GrantedAt:   granted,
			ExpiresAt:   trial.TrialEndAt.Unix(),
			OffsetHours: offset,
		}
		if err := s.backend.EnqueueAt(payload, fireAt, queue.Default); err != nil {
			log.Errorw("failed to queue reminder", "identity", trial.Identity, "offset_hours", offset, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	expiry := &queue.TaskPayload{
		TaskID:    queue.ExpiryTaskID(identity, granted),
		TaskType:  queue.TaskTypeTrialExpiry,
		Identity:  identity,
		GrantedAt: granted,
		ExpiresAt: trial.TrialEndAt.Unix(),
	}
	if err := s.backend.EnqueueAt(expiry, trial.TrialEndAt, queue.Critical); err != nil {
		log.Errorw("failed to queue expiry", "identity", trial.Identity, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
