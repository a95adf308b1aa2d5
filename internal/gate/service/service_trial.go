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
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
	"github.com/go-gatehouse/gatehouse/pkg/statemachine"
)

// TrialService owns the trial lifecycle: the atomic grant behind invite
// issuance, activation on channel join, and the converged termination
// path shared by expiry, voluntary leave, the sweep and the admin API.
type TrialService struct {
	trialRepo   repo.ITrialRepository
	inviteRepo  repo.IInviteRepository
	pendingRepo repo.IPendingRepository
	auditRepo   repo.IAuditRepository
	tg          BotClient
	notifier    *Notifier
	scheduler   TrialScheduler
	policy      DurationPolicy
	clock       Clock
	conf        *config.TrialConf
	channelID   int64
}

func NewTrialService(
	repos *repo.Repositories,
	tg BotClient,
	notifier *Notifier,
	scheduler TrialScheduler,
	policy DurationPolicy,
	clock Clock,
	conf *config.TrialConf,
	channelID int64,
) *TrialService {
	return &TrialService{
		trialRepo:   repos.Trial,
		inviteRepo:  repos.Invite,
		pendingRepo: repos.Pending,
		auditRepo:   repos.Audit,
		tg:          tg,
		notifier:    notifier,
		scheduler:   scheduler,
		policy:      policy,
		clock:       clock,
		conf:        conf,
		channelID:   channelID,
	}
}

// IssueInvite runs the grant for a verified identity and returns its
// single-use invite link. A valid existing link comes back unchanged; a
// creation already under way comes back as in-progress. The external
// link creation happens outside any transaction, and its failure removes
// the placeholder so the user can retry.
func (ts *TrialService) IssueInvite(ctx context.Context, identity int64) (*model.InviteResp, error) {
	now := ts.clock.Now()

	// Fast-path reads for clear user-facing answers. The claim
	// transaction below re-checks all of them authoritatively.
	used, err := ts.trialRepo.GetUsedTrial(ctx, identity)
	if err != nil {
		return nil, err
	}
	if used != nil && used.Consumed() {
		return nil, ErrTrialUsed
	}
	active, err := ts.trialRepo.GetActiveTrial(ctx, identity)
	if err != nil {
		return nil, err
	}
	if active != nil && !active.Expired(now) {
		return nil, ErrTrialActive
	}
	invite, err := ts.inviteRepo.GetInvite(ctx, identity)
	if err != nil {
		return nil, err
	}
	if invite != nil && invite.Usable(now) {
		metrics.RecordInviteIssued("existing")
		return &model.InviteResp{
			InviteLink:     invite.Reference,
			AlreadyHasLink: true,
			ExpiresAt:      invite.ExpiresAt.Unix(),
		}, nil
	}

	pending, err := ts.pendingRepo.GetPending(ctx, identity)
	if err != nil {
		return nil, err
	}
	if pending == nil || pending.Status != statemachine.FunnelPhoneVerified {
		return nil, errors.Wrap(ErrFunnelOrder, "phone verification required before an invite")
	}

	claim, err := ts.trialRepo.Claim(ctx, identity, now)
	if err != nil {
		return nil, err
	}
	switch claim {
	case repo.ClaimRejectedUsed:
		return nil, ErrTrialUsed
	case repo.ClaimRejectedActive:
		return nil, ErrTrialActive
	}

	outcome, existing, err := ts.inviteRepo.ClaimCreating(ctx, identity, now)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case repo.InviteClaimReady:
		metrics.RecordInviteIssued("existing")
		return &model.InviteResp{
			InviteLink:     existing.Reference,
			AlreadyHasLink: true,
			ExpiresAt:      existing.ExpiresAt.Unix(),
		}, nil
	case repo.InviteClaimInProgress:
		metrics.RecordInviteIssued("in_progress")
		return &model.InviteResp{InProgress: true}, nil
	}

	expiresAt := now.Add(time.Duration(ts.conf.InviteExpiryHours) * time.Hour)
	link, err := ts.tg.CreateChatInviteLink(ctx, ts.channelID, 1, expiresAt)
	if err != nil {
		log.Errorw("invite link creation failed", "identity", identity, "error", err)
		metrics.RecordInviteIssued("failed")
		appendAudit(ctx, ts.auditRepo, &model.AuditEvent{
			Identity: identity,
			Action:   model.AuditInviteFailed,
			Detail:   err.Error(),
		})
		if derr := ts.inviteRepo.DeleteInvite(ctx, identity); derr != nil {
			log.Errorw("failed to remove invite placeholder", "identity", identity, "error", derr)
		}
		return nil, errors.Wrap(ErrInviteCreation, "invite link creation failed")
	}

	finalized, err := ts.inviteRepo.FinalizeReady(ctx, identity, link.InviteLink, expiresAt)
	if err != nil {
		// The link exists on the Telegram side but the record write did
		// not land; drop the placeholder so a retry issues a fresh one.
		log.Errorw("invite finalization failed", "identity", identity, "error", err)
		metrics.RecordInviteIssued("failed")
		if derr := ts.inviteRepo.DeleteInvite(ctx, identity); derr != nil {
			log.Errorw("failed to remove invite placeholder", "identity", identity, "error", derr)
		}
		return nil, err
	}

	metrics.RecordInviteIssued("ok")
	metrics.RecordFunnelTransition(string(statemachine.FunnelPhoneVerified), string(statemachine.FunnelTrialGranted))
	appendAudit(ctx, ts.auditRepo, &model.AuditEvent{
		Identity: identity,
		Action:   model.AuditInviteIssued,
		Detail:   fmt.Sprintf("expires %s", finalized.ExpiresAt.UTC().Format(time.RFC3339)),
	})
	appendAudit(ctx, ts.auditRepo, &model.AuditEvent{
		Identity: identity,
		Action:   model.AuditTrialGranted,
		Detail:   "invite issued, trial reserved",
	})

	return &model.InviteResp{
		InviteLink: finalized.Reference,
		ExpiresAt:  finalized.ExpiresAt.Unix(),
	}, nil
}

// ExistingInvite returns the identity's still-usable invite, nil when
// there is none.
func (ts *TrialService) ExistingInvite(ctx context.Context, identity int64) (*model.InviteRecord, error) {
	invite, err := ts.inviteRepo.GetInvite(ctx, identity)
	if err != nil {
		return nil, err
	}
	if invite == nil || !invite.Usable(ts.clock.Now()) {
		return nil, nil
	}
	return invite, nil
}

// ActivateOnJoin starts a trial for a confirmed channel entry. The
// duration comes from the calendar policy, never from the user. A join
// while a valid trial runs is an idempotent no-op; a join inside the
// cooldown is refused, notified and force-removed. Returns the running
// trial, nil when the join was refused.
func (ts *TrialService) ActivateOnJoin(ctx context.Context, identity int64) (*model.ActiveTrial, error) {
	now := ts.clock.Now()
	hours := ts.policy.TrialHours(now)
	trial := &model.ActiveTrial{
		Identity:   identity,
		JoinTime:   now,
		TotalHours: hours,
		TrialEndAt: now.Add(time.Duration(hours) * time.Hour),
	}

	outcome, existing, until, err := ts.trialRepo.Activate(ctx, trial, ts.conf.CooldownDays, now)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case repo.ActivateAlreadyActive:
		log.Infow("join for an already running trial ignored", "identity", identity)
		return existing, nil

	case repo.ActivateCooldown:
		log.Infow("join refused, cooldown active", "identity", identity, "until", until)
		appendAudit(ctx, ts.auditRepo, &model.AuditEvent{
			Identity: identity,
			Action:   model.AuditCooldownRejected,
			Detail:   fmt.Sprintf("join refused until %s", until.UTC().Format(time.RFC3339)),
		})
		if nerr := ts.notifier.Cooldown(ctx, identity, until, now); nerr != nil {
			log.Warnw("failed to send cooldown message", "identity", identity, "error", nerr)
		}
		if rerr := ts.tg.ForceRemove(ctx, ts.channelID, identity); rerr != nil {
			log.Errorw("failed to remove cooldown join", "identity", identity, "error", rerr)
		}
		return nil, nil
	}

	metrics.RecordTrialGranted()
	appendAudit(ctx, ts.auditRepo, &model.AuditEvent{
		Identity: identity,
		Action:   model.AuditTrialActivated,
		Detail:   fmt.Sprintf("%d hour trial until %s", hours, trial.TrialEndAt.UTC().Format(time.RFC3339)),
	})

	if serr := ts.scheduler.ScheduleTrial(ctx, trial); serr != nil {
		// The hourly sweep still terminates overdue trials, so the trial
		// stands even when scheduling fails.
		log.Errorw("failed to schedule trial tasks", "identity", identity, "error", serr)
	}
	if nerr := ts.notifier.Welcome(ctx, identity, trial); nerr != nil {
		log.Warnw("failed to send welcome message", "identity", identity, "error", nerr)
	}
	return trial, nil
}

// Terminate settles a trial and runs the side effects: membership
// removal (skipped when the user already left), the usage summary
// message, audit and metrics. An absent trial is a no-op, which is what
// makes the three termination triggers idempotent against each other.
// trigger labels the metrics: "expiry", "leave", "sweep" or "admin".
func (ts *TrialService) Terminate(ctx context.Context, identity int64, reason, trigger string) (*model.ActiveTrial, error) {
	now := ts.clock.Now()
	trial, err := ts.trialRepo.Terminate(ctx, identity, reason, now)
	if err != nil {
		return nil, err
	}
	if trial == nil {
		return nil, nil
	}

	metrics.RecordTrialTerminated(trigger)
	appendAudit(ctx, ts.auditRepo, &model.AuditEvent{
		Identity: identity,
		Action:   model.AuditTrialTerminated,
		Detail:   fmt.Sprintf("reason %s, trigger %s", reason, trigger),
	})

	if reason != model.EndReasonLeft {
		if rerr := ts.tg.ForceRemove(ctx, ts.channelID, identity); rerr != nil {
			log.Errorw("failed to remove member after termination",
				"identity", identity, "reason", reason, "error", rerr)
		}
	}
	if nerr := ts.notifier.Ended(ctx, identity, trial, now, reason); nerr != nil {
		log.Warnw("failed to send trial end message", "identity", identity, "error", nerr)
	}
	return trial, nil
}

// TrialInfo returns the remaining-time summary for the mini app.
func (ts *TrialService) TrialInfo(ctx context.Context, identity int64) (*model.TrialInfoResp, error) {
	now := ts.clock.Now()

	active, err := ts.trialRepo.GetActiveTrial(ctx, identity)
	if err != nil {
		return nil, err
	}
	if active != nil && !active.Expired(now) {
		elapsed := now.Sub(active.JoinTime).Hours()
		if elapsed < 0 {
			elapsed = 0
		}
		return &model.TrialInfoResp{
			HasActiveTrial: true,
			JoinTime:       active.JoinTime.Unix(),
			TrialEndAt:     active.TrialEndAt.Unix(),
			TotalHours:     active.TotalHours,
			ElapsedHours:   round1(elapsed),
			RemainingHours: round1(active.Remaining(now).Hours()),
		}, nil
	}

	used, err := ts.trialRepo.GetUsedTrial(ctx, identity)
	if err != nil {
		return nil, err
	}
	if (used != nil && used.Consumed()) || active != nil {
		// Either settled, or expired and waiting for the sweep.
		return &model.TrialInfoResp{TrialEnded: true}, nil
	}
	return &model.TrialInfoResp{}, nil
}
