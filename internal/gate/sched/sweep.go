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
	"fmt"
	"time"

	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/pkg/cron"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
)

const (
	sweepEvery     = "@every 1h"
	sweepBootDelay = "@every 5m"
	sweepTimeout   = 2 * time.Minute

	// pendingStaleAfter bounds how long an abandoned funnel record is
	// kept before the sweep drops it.
	pendingStaleAfter = 24 * time.Hour
	// reservationGrace extends the invite lifetime before an
	// unconsumed trial reservation is released back to the user.
	reservationGrace = time.Hour
)

// RegisterSweep installs the hourly cleanup on the cron, with a
// one-shot first run five minutes after boot so a crash does not leave
// garbage sitting for most of an hour.
func (s *Scheduler) RegisterSweep(c *cron.Cron) error {
	if err := c.AddOnceFunc(sweepBootDelay, s.runSweep, "gate_sweep_boot"); err != nil {
		return err
	}
	return c.AddFunc(sweepEvery, s.runSweep, "gate_sweep")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	s.Sweep(ctx)
}

// Sweep is the repair pass behind every queued task: it drops
// abandoned funnel records, releases dead reservations and invite
// placeholders, deletes expired invite rows, removes trial rows that
// no longer verify, and settles trials whose expiry task was lost.
// Every target it cleans is counted and audited.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.clock.Now()

	if n, err := s.pendings.DeleteStalePending(ctx, now.Add(-pendingStaleAfter)); err != nil {
		log.Errorw("sweep: stale pending cleanup failed", "error", err)
	} else {
		s.recordCleanup(ctx, "pending_verification", n)
	}

	reservedBefore := now.Add(-(time.Duration(s.conf.InviteExpiryHours)*time.Hour + reservationGrace))
	if n, err := s.trials.DeleteStaleReservations(ctx, reservedBefore); err != nil {
		log.Errorw("sweep: stale reservation cleanup failed", "error", err)
	} else {
		s.recordCleanup(ctx, "trial_reservation", n)
	}

	if n, err := s.invites.DeleteStaleCreating(ctx, now.Add(-model.InviteCreatingStaleAfter)); err != nil {
		log.Errorw("sweep: stale invite placeholder cleanup failed", "error", err)
	} else {
		s.recordCleanup(ctx, "invite_creating", n)
	}

	if n, err := s.invites.DeleteExpired(ctx, now); err != nil {
		log.Errorw("sweep: expired invite cleanup failed", "error", err)
	} else {
		s.recordCleanup(ctx, "invite_expired", n)
	}

	trials, err := s.trials.ListActiveTrials(ctx)
	if err != nil {
		log.Errorw("sweep: listing active trials failed", "error", err)
		return
	}
	var live, removed, settled int64
	for i := range trials {
		trial := &trials[i]
		switch {
		case !trial.Verify(s.sealer):
			metrics.RecordSignatureMismatch("active_trial")
			s.discard(ctx, trial, model.AuditSignatureMismatch, "signature check failed during sweep")
			removed++
		case !plausibleWindow(trial, now):
			s.discard(ctx, trial, model.AuditIntegrityFailure, "trial window implausible during sweep")
			removed++
		case trial.Expired(now):
			if _, err := s.lifecycle.Terminate(ctx, trial.Identity, model.EndReasonOverdue, "sweep"); err != nil {
				log.Errorw("sweep: overdue settlement failed", "identity", trial.Identity, "error", err)
			} else {
				settled++
			}
		default:
			live++
		}
	}
	s.recordCleanup(ctx, "trial_untrusted", removed)
	s.recordCleanup(ctx, "trial_overdue", settled)
	metrics.SetActiveTrials(live)
}

// recordCleanup counts a sweep target and leaves an audit line when
// something was actually removed.
func (s *Scheduler) recordCleanup(ctx context.Context, target string, n int64) {
	if n <= 0 {
		return
	}
	metrics.RecordSweepCleanup(target, n)
	log.Infow("sweep cleaned", "target", target, "count", n)
	if err := s.audits.Append(ctx, &model.AuditEvent{
		Action: model.AuditSweepCleanup,
		Detail: fmt.Sprintf("%s: %d", target, n),
	}); err != nil {
		log.Warnw("audit append failed", "action", model.AuditSweepCleanup, "error", err)
	}
}
