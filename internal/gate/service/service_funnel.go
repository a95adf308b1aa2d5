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
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
	"github.com/go-gatehouse/gatehouse/internal/pkg/reputation"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
	"github.com/go-gatehouse/gatehouse/pkg/statemachine"
)

// FunnelService walks applicants through the verification funnel: the
// IP screening, the personal-details step, phone verification, and the
// status/fallback surfaces around them.
type FunnelService struct {
	pendingRepo repo.IPendingRepository
	trialRepo   repo.ITrialRepository
	inviteRepo  repo.IInviteRepository
	auditRepo   repo.IAuditRepository
	rep         ReputationChecker
	trial       *TrialService
	tg          BotClient
	clock       Clock
	trialConf   *config.TrialConf
	repConf     *config.ReputationConf
	fallback    *config.FallbackConf
	channelID   int64
}

func NewFunnelService(
	repos *repo.Repositories,
	rep ReputationChecker,
	trial *TrialService,
	tg BotClient,
	clock Clock,
	appConf *config.AppConfig,
) *FunnelService {
	return &FunnelService{
		pendingRepo: repos.Pending,
		trialRepo:   repos.Trial,
		inviteRepo:  repos.Invite,
		auditRepo:   repos.Audit,
		rep:         rep,
		trial:       trial,
		tg:          tg,
		clock:       clock,
		trialConf:   &appConf.Trial,
		repConf:     &appConf.Reputation,
		fallback:    &appConf.Fallback,
		channelID:   appConf.Telegram.ChannelID,
	}
}

// CheckIP is the funnel entry step: it resolves the requester's address
// against the reputation provider, blocks anonymized or blocklisted
// origins, and fails open with a review flag when the provider itself is
// down. Records at step 1 or later echo their stored outcome instead of
// re-running the check.
func (fs *FunnelService) CheckIP(ctx context.Context, identity int64, ip string) (*model.VerifyIPResp, error) {
	if identity <= 0 {
		return nil, errors.Wrap(ErrInvalidInput, "identity is required")
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, errors.Wrap(ErrInvalidInput, "ip is required")
	}

	pending, err := fs.pendingRepo.GetPending(ctx, identity)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		pending = &model.PendingVerification{Identity: identity, Status: statemachine.FunnelUnverified}
	}

	if pending.Status.IsBlocked() || pending.Status.Reached(statemachine.FunnelStep1Submitted) {
		return fs.storedIPResp(pending), nil
	}

	verdict := fs.rep.Check(ctx, ip)
	blockedCountry := fs.blockedCountry(verdict.CountryCode)
	resp := &model.VerifyIPResp{
		IP:               ip,
		IsVPN:            verdict.Anonymizing(),
		IsBlockedCountry: blockedCountry,
		CountryCode:      verdict.CountryCode,
		Bypassed:         verdict.APIFailed,
	}

	fs.applyVerdict(pending, ip, verdict)

	if (resp.IsVPN || blockedCountry) && !verdict.APIFailed {
		if err := fs.transition(pending, statemachine.FunnelBlockedRegion); err != nil {
			return nil, err
		}
		if err := fs.pendingRepo.SavePending(ctx, pending); err != nil {
			return nil, err
		}
		appendAudit(ctx, fs.auditRepo, &model.AuditEvent{
			Identity: identity,
			Action:   model.AuditBlockedRegion,
			Detail:   fmt.Sprintf("country %s, anonymizing %t", verdict.CountryCode, resp.IsVPN),
			IP:       ip,
		})
		return resp, nil
	}

	if pending.Status == statemachine.FunnelUnverified {
		if err := fs.transition(pending, statemachine.FunnelIPChecked); err != nil {
			return nil, err
		}
	}
	if err := fs.pendingRepo.SavePending(ctx, pending); err != nil {
		return nil, err
	}
	appendAudit(ctx, fs.auditRepo, &model.AuditEvent{
		Identity: identity,
		Action:   model.AuditIPChecked,
		Detail:   fmt.Sprintf("country %s, api_failed %t", verdict.CountryCode, verdict.APIFailed),
		IP:       ip,
	})
	if verdict.APIFailed {
		appendAudit(ctx, fs.auditRepo, &model.AuditEvent{
			Identity: identity,
			Action:   model.AuditManualReview,
			Detail:   "reputation lookup failed open",
			IP:       ip,
		})
	}
	return resp, nil
}

// SubmitStep1 stores the sanitized personal details and advances to
// step1_submitted. A repeat submission refreshes the fields without
// advancing. A client echo of a failed-open IP check can only add
// scrutiny, never remove it.
func (fs *FunnelService) SubmitStep1(ctx context.Context, identity int64, req *model.SubmitStep1Req, ip string) (*model.PendingVerification, error) {
	pending, err := fs.pendingRepo.GetPending(ctx, identity)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, errors.Wrap(ErrFunnelOrder, "complete the address check first")
	}
	if pending.Status.IsBlocked() {
		return nil, fs.blockedErr(pending.Status)
	}

	name := sanitizeText(req.Name, maxNameLen)
	country := sanitizeText(req.Country, maxCountryLen)
	email := sanitizeText(req.Email, maxEmailLen)
	if name == "" || country == "" {
		return nil, errors.Wrap(ErrInvalidInput, "name and country are required")
	}
	if !validEmail(email) {
		return nil, errors.Wrap(ErrInvalidInput, "email address is not valid")
	}

	firstFlag := req.IPCheckBypassed && !pending.RequiresManualReview

	if !pending.Status.Reached(statemachine.FunnelStep1Submitted) {
		if err := fs.transition(pending, statemachine.FunnelStep1Submitted); err != nil {
			return nil, err
		}
	}
	pending.Name = name
	pending.Country = country
	pending.Email = email
	if req.IPCheckBypassed {
		pending.BypassCheck = true
		pending.RequiresManualReview = true
	}

	if err := fs.pendingRepo.SavePending(ctx, pending); err != nil {
		return nil, err
	}
	appendAudit(ctx, fs.auditRepo, &model.AuditEvent{
		Identity: identity,
		Action:   model.AuditStep1Submitted,
		Detail:   fmt.Sprintf("country %s", country),
		IP:       ip,
	})
	if firstFlag {
		appendAudit(ctx, fs.auditRepo, &model.AuditEvent{
			Identity: identity,
			Action:   model.AuditManualReview,
			Detail:   "client reported a failed-open address check",
			IP:       ip,
		})
	}
	return pending, nil
}

// VerifyPhone records a platform-verified phone number. The caller is
// responsible for proving the source: a bot contact card owned by the
// sender, or an authenticated mini-app request. Numbers on the blocked
// calling-code list divert to blocked_phone and are stored masked.
func (fs *FunnelService) VerifyPhone(ctx context.Context, identity int64, rawPhone, source string) (*model.PendingVerification, error) {
	pending, err := fs.pendingRepo.GetPending(ctx, identity)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, errors.Wrap(ErrFunnelOrder, "complete the previous steps first")
	}
	if pending.Status.IsBlocked() {
		return nil, fs.blockedErr(pending.Status)
	}
	if pending.Status.Reached(statemachine.FunnelPhoneVerified) {
		return pending, nil
	}

	phone := strings.TrimSpace(rawPhone)
	if phone == "" {
		return nil, errors.Wrap(ErrInvalidInput, "phone number is required")
	}
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}

	for _, prefix := range fs.trialConf.BlockedPhonePrefixes {
		if strings.HasPrefix(phone, prefix) {
			if err := fs.transition(pending, statemachine.FunnelBlockedPhone); err != nil {
				return nil, err
			}
			pending.Phone = maskPhone(phone)
			if err := fs.pendingRepo.SavePending(ctx, pending); err != nil {
				return nil, err
			}
			appendAudit(ctx, fs.auditRepo, &model.AuditEvent{
				Identity: identity,
				Action:   model.AuditBlockedPhone,
				Detail:   fmt.Sprintf("prefix %s via %s", maskPhone(phone), source),
			})
			return nil, ErrPhoneBlocked
		}
	}

	if err := fs.transition(pending, statemachine.FunnelPhoneVerified); err != nil {
		return nil, err
	}
	pending.Phone = phone
	if err := fs.pendingRepo.SavePending(ctx, pending); err != nil {
		return nil, err
	}
	appendAudit(ctx, fs.auditRepo, &model.AuditEvent{
		Identity: identity,
		Action:   model.AuditPhoneVerified,
		Detail:   fmt.Sprintf("%s via %s", maskPhone(phone), source),
	})
	return pending, nil
}

// Status reports the identity's funnel position and trial state in the
// shape the mini app polls. An identity that is already inside the
// channel with no recorded trial gets one started on the spot, the same
// as if the join event had just arrived.
func (fs *FunnelService) Status(ctx context.Context, identity int64) (*model.StatusResp, error) {
	if identity <= 0 {
		return nil, errors.Wrap(ErrInvalidInput, "identity is required")
	}
	now := fs.clock.Now()
	resp := &model.StatusResp{
		Identity:      identity,
		Status:        statemachine.FunnelUnverified,
		CanStartTrial: true,
		TrialHours:    fs.trialConf.BaseHours,
	}

	pending, err := fs.pendingRepo.GetPending(ctx, identity)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		resp.Status = pending.Status
	}

	used, err := fs.trialRepo.GetUsedTrial(ctx, identity)
	if err != nil {
		return nil, err
	}
	if used != nil && used.Consumed() {
		resp.HasUsedTrial = true
		resp.CanStartTrial = false
		until := used.CooldownUntil(fs.trialConf.CooldownDays)
		if now.Before(until) {
			resp.CooldownDays = cooldownDaysLeft(until, now)
		}
		return resp, nil
	}

	active, err := fs.trialRepo.GetActiveTrial(ctx, identity)
	if err != nil {
		return nil, err
	}
	if active != nil && !active.Expired(now) {
		fs.fillActive(resp, active, now)
		return resp, nil
	}

	if active == nil && used == nil {
		member, merr := fs.tg.GetChatMember(ctx, fs.channelID, identity)
		if merr != nil {
			log.Warnw("membership probe failed during status", "identity", identity, "error", merr)
		} else if member.IsMember() {
			trial, aerr := fs.trial.ActivateOnJoin(ctx, identity)
			if aerr != nil {
				log.Warnw("self-healing activation failed", "identity", identity, "error", aerr)
			} else if trial != nil {
				log.Infow("trial restored for untracked member", "identity", identity)
				fs.fillActive(resp, trial, now)
				return resp, nil
			}
		}
	}

	invite, err := fs.inviteRepo.GetInvite(ctx, identity)
	if err != nil {
		return nil, err
	}
	if invite != nil && invite.Usable(now) {
		resp.HasInviteLink = true
		resp.InviteLink = invite.Reference
		resp.CanStartTrial = false
	}
	return resp, nil
}

// FallbackVerify is the no-JS escape hatch: one origin-checked form
// submission that performs the address check and the personal-details
// step together. Anonymized or blocklisted addresses are refused
// outright unless the lookup failed open; whatever passes is flagged for
// manual review. Nothing is written for a refused submission, so an
// unauthenticated claim cannot poison someone else's funnel record.
func (fs *FunnelService) FallbackVerify(ctx context.Context, req *model.FallbackVerifyReq, ip, origin, referer string) (*model.PendingVerification, error) {
	if !originAllowed(origin, referer, ip, fs.fallback.AllowedOrigins) {
		appendAudit(ctx, fs.auditRepo, &model.AuditEvent{
			Action: model.AuditOriginRejected,
			Detail: fmt.Sprintf("origin %q referer %q", origin, referer),
			IP:     ip,
		})
		return nil, ErrOriginNotAllowed
	}

	identity, err := parseIdentity(req.Identity)
	if err != nil {
		return nil, err
	}
	name := sanitizeText(req.Name, maxNameLen)
	country := sanitizeText(req.Country, maxCountryLen)
	email := sanitizeText(req.Email, maxEmailLen)
	if name == "" || country == "" {
		return nil, errors.Wrap(ErrInvalidInput, "name and country are required")
	}
	if !validEmail(email) {
		return nil, errors.Wrap(ErrInvalidInput, "email address is not valid")
	}

	verdict := fs.rep.Check(ctx, ip)
	blockedCountry := fs.blockedCountry(verdict.CountryCode)
	if (verdict.Anonymizing() || blockedCountry) && !verdict.APIFailed {
		appendAudit(ctx, fs.auditRepo, &model.AuditEvent{
			Identity: identity,
			Action:   model.AuditBlockedRegion,
			Detail:   fmt.Sprintf("fallback refused, country %s, anonymizing %t", verdict.CountryCode, verdict.Anonymizing()),
			IP:       ip,
		})
		return nil, ErrRegionBlocked
	}

	pending, err := fs.pendingRepo.GetPending(ctx, identity)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		pending = &model.PendingVerification{Identity: identity, Status: statemachine.FunnelUnverified}
	}
	if pending.Status.IsBlocked() {
		return nil, fs.blockedErr(pending.Status)
	}

	fs.applyVerdict(pending, ip, verdict)
	pending.BypassCheck = true
	pending.RequiresManualReview = true
	pending.Name = name
	pending.Country = country
	pending.Email = email

	if pending.Status == statemachine.FunnelUnverified {
		if err := fs.transition(pending, statemachine.FunnelIPChecked); err != nil {
			return nil, err
		}
	}
	if pending.Status == statemachine.FunnelIPChecked {
		if err := fs.transition(pending, statemachine.FunnelStep1Submitted); err != nil {
			return nil, err
		}
	}

	if err := fs.pendingRepo.SavePending(ctx, pending); err != nil {
		return nil, err
	}
	appendAudit(ctx, fs.auditRepo, &model.AuditEvent{
		Identity: identity,
		Action:   model.AuditFallbackVerified,
		Detail:   fmt.Sprintf("country %s", country),
		IP:       ip,
	})
	appendAudit(ctx, fs.auditRepo, &model.AuditEvent{
		Identity: identity,
		Action:   model.AuditManualReview,
		Detail:   "submitted through the fallback form",
		IP:       ip,
	})
	return pending, nil
}

// transition advances the funnel machine and mirrors the move into the
// record and the funnel metrics. Illegal moves surface as order errors.
func (fs *FunnelService) transition(pending *model.PendingVerification, to statemachine.FunnelStatus) error {
	sm := statemachine.NewFunnelStateMachineAt(pending.Status)
	if err := sm.TransitTo(to); err != nil {
		return errors.Wrapf(ErrFunnelOrder, "cannot move from %s to %s", pending.Status, to)
	}
	metrics.RecordFunnelTransition(string(pending.Status), string(to))
	pending.Status = to
	return nil
}

// applyVerdict copies a reputation verdict into the record, including
// the raw provider payload for later inspection.
func (fs *FunnelService) applyVerdict(pending *model.PendingVerification, ip string, verdict *reputation.Verdict) {
	pending.IPAddress = ip
	pending.IPCountry = verdict.CountryCode
	pending.IsVPN = verdict.Anonymizing()
	pending.APIFailed = verdict.APIFailed
	if len(verdict.Raw) > 0 {
		pending.Verdict = datatypes.JSON(verdict.Raw)
	}
	if verdict.APIFailed {
		pending.RequiresManualReview = true
	}
}

// storedIPResp echoes the outcome already on the record for repeat entry
// calls past the point where re-checking would matter.
func (fs *FunnelService) storedIPResp(pending *model.PendingVerification) *model.VerifyIPResp {
	return &model.VerifyIPResp{
		IP:               pending.IPAddress,
		IsVPN:            pending.IsVPN,
		IsBlockedCountry: fs.blockedCountry(pending.IPCountry),
		CountryCode:      pending.IPCountry,
		Bypassed:         pending.APIFailed || pending.BypassCheck,
	}
}

func (fs *FunnelService) blockedCountry(code string) bool {
	if code == "" {
		return false
	}
	for _, blocked := range fs.repConf.BlockedCountries {
		if strings.EqualFold(code, blocked) {
			return true
		}
	}
	return false
}

func (fs *FunnelService) blockedErr(status statemachine.FunnelStatus) error {
	if status == statemachine.FunnelBlockedPhone {
		return ErrPhoneBlocked
	}
	return ErrRegionBlocked
}

// fillActive populates the running-trial portion of a status response.
func (fs *FunnelService) fillActive(resp *model.StatusResp, active *model.ActiveTrial, now time.Time) {
	resp.HasActiveTrial = true
	resp.CanStartTrial = false
	resp.TrialHours = active.TotalHours
	elapsed := now.Sub(active.JoinTime).Hours()
	if elapsed < 0 {
		elapsed = 0
	}
	resp.ElapsedHours = round1(elapsed)
	resp.RemainingHours = round1(active.Remaining(now).Hours())
}
