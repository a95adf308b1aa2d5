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
	"strings"
	"time"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
	"github.com/go-gatehouse/gatehouse/internal/pkg/queue"
)

var baseTime = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type enqueued struct {
	payload *queue.TaskPayload
	at      time.Time
	queue   string
}

// fakeBackend records enqueued tasks and registered handlers in place
// of the Redis-backed queue.
type fakeBackend struct {
	tasks    []enqueued
	handlers map[string]queue.TaskHandlerFunc
	failType string
	failErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{handlers: map[string]queue.TaskHandlerFunc{}}
}

func (b *fakeBackend) EnqueueAt(payload *queue.TaskPayload, at time.Time, queueName string) error {
	if b.failType == payload.TaskType {
		return b.failErr
	}
	b.tasks = append(b.tasks, enqueued{payload: payload, at: at, queue: queueName})
	return nil
}

func (b *fakeBackend) RegisterHandlerFunc(taskType string, handlerFunc queue.TaskHandlerFunc) {
	b.handlers[taskType] = handlerFunc
}

func (b *fakeBackend) byType(taskType string) []enqueued {
	var out []enqueued
	for _, task := range b.tasks {
		if task.payload.TaskType == taskType {
			out = append(out, task)
		}
	}
	return out
}

// fakeTrialStore mimics the verification behavior of the real
// repository: a row whose signature does not match is reported absent
// by GetActiveTrial but still shows up in the raw listing.
type fakeTrialStore struct {
	repo.ITrialRepository
	sealer *model.Sealer
	rows   map[int64]*model.ActiveTrial

	reservationCutoff time.Time
	reservationSwept  int64
	getErr            error
}

func (f *fakeTrialStore) GetActiveTrial(ctx context.Context, identity int64) (*model.ActiveTrial, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	row, ok := f.rows[identity]
	if !ok || !row.Verify(f.sealer) {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeTrialStore) ListActiveTrials(ctx context.Context) ([]model.ActiveTrial, error) {
	out := make([]model.ActiveTrial, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, *row)
	}
	return out, nil
}

func (f *fakeTrialStore) DeleteActiveTrial(ctx context.Context, identity int64) error {
	delete(f.rows, identity)
	return nil
}

func (f *fakeTrialStore) DeleteStaleReservations(ctx context.Context, reservedBefore time.Time) (int64, error) {
	f.reservationCutoff = reservedBefore
	return f.reservationSwept, nil
}

type fakePendingStore struct {
	repo.IPendingRepository
	cutoff time.Time
	swept  int64
	err    error
}

func (f *fakePendingStore) DeleteStalePending(ctx context.Context, updatedBefore time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.cutoff = updatedBefore
	return f.swept, nil
}

type fakeInviteStore struct {
	repo.IInviteRepository
	creatingCutoff time.Time
	creatingSwept  int64
	expiredAt      time.Time
	expiredSwept   int64
}

func (f *fakeInviteStore) DeleteStaleCreating(ctx context.Context, createdBefore time.Time) (int64, error) {
	f.creatingCutoff = createdBefore
	return f.creatingSwept, nil
}

func (f *fakeInviteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.expiredAt = now
	return f.expiredSwept, nil
}

type fakeAuditStore struct {
	repo.IAuditRepository
	events []model.AuditEvent
}

func (f *fakeAuditStore) Append(ctx context.Context, event *model.AuditEvent) error {
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeAuditStore) actions(action string) []model.AuditEvent {
	var out []model.AuditEvent
	for _, e := range f.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type termination struct {
	identity int64
	reason   string
	trigger  string
}

// fakeLifecycle records terminations and settles the row in the trial
// store the way the real service path would.
type fakeLifecycle struct {
	store *fakeTrialStore
	calls []termination
	err   error
}

func (f *fakeLifecycle) Terminate(ctx context.Context, identity int64, reason, trigger string) (*model.ActiveTrial, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, termination{identity: identity, reason: reason, trigger: trigger})
	trial, ok := f.store.rows[identity]
	if !ok {
		return nil, nil
	}
	delete(f.store.rows, identity)
	cp := *trial
	return &cp, nil
}

type reminderSent struct {
	identity int64
	hours    int
}

type fakeNotifier struct {
	sent []reminderSent
	err  error
}

func (f *fakeNotifier) Reminder(ctx context.Context, identity int64, remainingHours int) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, reminderSent{identity: identity, hours: remainingHours})
	return nil
}

func testConf() *config.TrialConf {
	return &config.TrialConf{
		SigningSecret:          strings.Repeat("s", 32),
		BaseHours:              72,
		WeekendHours:           120,
		BaseReminderOffsets:    []int{24, 48},
		WeekendReminderOffsets: []int{24, 72, 96},
		CooldownDays:           30,
		InviteExpiryHours:      5,
	}
}

type schedEnv struct {
	backend  *fakeBackend
	trials   *fakeTrialStore
	pendings *fakePendingStore
	invites  *fakeInviteStore
	audits   *fakeAuditStore
	life     *fakeLifecycle
	notifier *fakeNotifier
	clock    *fixedClock
	sealer   *model.Sealer
	sched    *Scheduler
}

func newSchedEnv() *schedEnv {
	conf := testConf()
	sealer := model.NewSealer(conf.SigningSecret)
	backend := newFakeBackend()
	trials := &fakeTrialStore{sealer: sealer, rows: map[int64]*model.ActiveTrial{}}
	pendings := &fakePendingStore{}
	invites := &fakeInviteStore{}
	audits := &fakeAuditStore{}
	life := &fakeLifecycle{store: trials}
	notifier := &fakeNotifier{}
	clock := &fixedClock{now: baseTime}

	repos := &repo.Repositories{
		Pending: pendings,
		Trial:   trials,
		Invite:  invites,
		Audit:   audits,
	}
	s := NewScheduler(backend, repos, sealer, conf, clock)
	s.Bind(life, notifier)

	return &schedEnv{
		backend:  backend,
		trials:   trials,
		pendings: pendings,
		invites:  invites,
		audits:   audits,
		life:     life,
		notifier: notifier,
		clock:    clock,
		sealer:   sealer,
		sched:    s,
	}
}

// addTrial stores a sealed trial row running hours from join.
func (e *schedEnv) addTrial(identity int64, join time.Time, hours int) *model.ActiveTrial {
	trial := &model.ActiveTrial{
		Identity:   identity,
		JoinTime:   join,
		TotalHours: hours,
		TrialEndAt: join.Add(time.Duration(hours) * time.Hour),
	}
	trial.Seal(e.sealer)
	e.trials.rows[identity] = trial
	return trial
}
