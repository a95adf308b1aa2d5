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
	"time"

	"github.com/pkg/errors"

	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
)

const (
	// joinSkew tolerates clock drift between the node that granted a
	// trial and the one inspecting it.
	joinSkew = time.Hour
	// staleBound is how long past its deadline a row may linger before
	// it is treated as corrupt rather than merely overdue.
	staleBound = 30 * 24 * time.Hour
)

// Reconcile rebuilds the delayed task set from the stored trial rows.
// It runs once at startup, after Bind and before the queue starts
// consuming: rows that fail verification are removed, trials already
// past their deadline are settled on the spot, and live trials get
// their remaining reminders and the expiry queued again. Deterministic
// task ids collapse the re-queue into whatever still sits in Redis, so
// a restart never double-sends a reminder.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	trials, err := s.trials.ListActiveTrials(ctx)
	if err != nil {
		return errors.Wrap(err, "list active trials")
	}
	now := s.clock.Now()
	var live int64
	for i := range trials {
		trial := &trials[i]
		switch {
		case !trial.Verify(s.sealer):
			metrics.RecordSignatureMismatch("active_trial")
			s.discard(ctx, trial, model.AuditSignatureMismatch, "signature check failed during startup reconciliation")
		case !plausibleWindow(trial, now):
			s.discard(ctx, trial, model.AuditIntegrityFailure, "trial window implausible at startup reconciliation")
		case trial.Expired(now):
			if _, err := s.lifecycle.Terminate(ctx, trial.Identity, model.EndReasonExpired, "reconcile"); err != nil {
				log.Errorw("failed to settle overdue trial at startup", "identity", trial.Identity, "error", err)
			}
		default:
			live++
			if err := s.enqueueTrialTasks(trial, now); err != nil {
				log.Errorw("failed to re-queue trial tasks", "identity", trial.Identity, "error", err)
			}
		}
	}
	metrics.SetActiveTrials(live)
	log.Infow("trial schedule reconciled", "rows", len(trials), "live", live)
	return nil
}

// discard removes a trial row that cannot be trusted, leaving an audit
// line instead of settling it through the normal termination path.
func (s *Scheduler) discard(ctx context.Context, trial *model.ActiveTrial, action, detail string) {
	log.Errorw("removing untrusted trial row", "identity", trial.Identity, "reason", detail)
	if err := s.audits.Append(ctx, &model.AuditEvent{
		Identity: trial.Identity,
		Action:   action,
		Detail:   detail,
	}); err != nil {
		log.Warnw("audit append failed", "action", action, "error", err)
	}
	if err := s.trials.DeleteActiveTrial(ctx, trial.Identity); err != nil {
		log.Errorw("failed to delete untrusted trial row", "identity", trial.Identity, "error", err)
	}
}

// plausibleWindow rejects rows whose timestamps could not have come
// from the grant path: a join in the future, or a record still present
// long after its deadline.
func plausibleWindow(trial *model.ActiveTrial, now time.Time) bool {
	if trial.JoinTime.After(now.Add(joinSkew)) {
		return false
	}
	if now.Sub(trial.TrialEndAt) > staleBound {
		return false
	}
	return true
}
