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

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
	"github.com/go-gatehouse/gatehouse/internal/pkg/reputation"
	"github.com/go-gatehouse/gatehouse/internal/pkg/telegram"
)

// The fakes below mirror the repository semantics in memory so the
// services can be exercised end to end without a database.

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type fakePendingRepo struct {
	records map[int64]*model.PendingVerification
	saveErr error
}

func newFakePendingRepo() *fakePendingRepo {
	return &fakePendingRepo{records: make(map[int64]*model.PendingVerification)}
}

func (f *fakePendingRepo) GetPending(_ context.Context, identity int64) (*model.PendingVerification, error) {
	return f.records[identity], nil
}

func (f *fakePendingRepo) SavePending(_ context.Context, pending *model.PendingVerification) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records[pending.Identity] = pending
	return nil
}

func (f *fakePendingRepo) DeletePending(_ context.Context, identity int64) error {
	delete(f.records, identity)
	return nil
}

func (f *fakePendingRepo) DeleteStalePending(_ context.Context, updatedBefore time.Time) (int64, error) {
	var n int64
	for id, p := range f.records {
		if p.UpdatedAt.Before(updatedBefore) {
			delete(f.records, id)
			n++
		}
	}
	return n, nil
}

func (f *fakePendingRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, p := range f.records {
		out[string(p.Status)]++
	}
	return out, nil
}

type fakeTrialRepo struct {
	active      map[int64]*model.ActiveTrial
	used        map[int64]*model.UsedTrial
	claimErr    error
	activateErr error
}

func newFakeTrialRepo() *fakeTrialRepo {
	return &fakeTrialRepo{
		active: make(map[int64]*model.ActiveTrial),
		used:   make(map[int64]*model.UsedTrial),
	}
}

func (f *fakeTrialRepo) GetActiveTrial(_ context.Context, identity int64) (*model.ActiveTrial, error) {
	return f.active[identity], nil
}

func (f *fakeTrialRepo) GetUsedTrial(_ context.Context, identity int64) (*model.UsedTrial, error) {
	return f.used[identity], nil
}

func (f *fakeTrialRepo) Claim(_ context.Context, identity int64, now time.Time) (repo.ClaimOutcome, error) {
	if f.claimErr != nil {
		return repo.ClaimReserved, f.claimErr
	}
	if u := f.used[identity]; u != nil {
		if u.Consumed() {
			return repo.ClaimRejectedUsed, nil
		}
		u.ReservedAt = &now
		return repo.ClaimAlreadyReserved, nil
	}
	if f.active[identity] != nil {
		return repo.ClaimRejectedActive, nil
	}
	f.used[identity] = &model.UsedTrial{
		Identity:   identity,
		Status:     model.UsedTrialStatusReserved,
		ReservedAt: &now,
	}
	return repo.ClaimReserved, nil
}

func (f *fakeTrialRepo) ReleaseClaim(_ context.Context, identity int64) error {
	if u := f.used[identity]; u != nil && !u.Consumed() {
		delete(f.used, identity)
	}
	return nil
}

func (f *fakeTrialRepo) Activate(_ context.Context, trial *model.ActiveTrial, cooldownDays int, now time.Time) (repo.ActivateOutcome, *model.ActiveTrial, time.Time, error) {
	if f.activateErr != nil {
		return repo.ActivateCreated, nil, time.Time{}, f.activateErr
	}
	trial.JoinTime = trial.JoinTime.Truncate(time.Second)
	trial.TrialEndAt = trial.TrialEndAt.Truncate(time.Second)

	if cur := f.active[trial.Identity]; cur != nil {
		if !cur.Expired(now) {
			cp := *cur
			return repo.ActivateAlreadyActive, &cp, time.Time{}, nil
		}
		endedAt := cur.TrialEndAt
		f.used[trial.Identity] = &model.UsedTrial{
			Identity: trial.Identity,
			Status:   model.UsedTrialStatusUsed,
			Reason:   model.EndReasonExpired,
			EndedAt:  &endedAt,
		}
		delete(f.active, trial.Identity)
	}

	if u := f.used[trial.Identity]; u != nil && u.Consumed() {
		until := u.CooldownUntil(cooldownDays)
		if now.Before(until) {
			return repo.ActivateCooldown, nil, until, nil
		}
	}
	delete(f.used, trial.Identity)
	cp := *trial
	f.active[trial.Identity] = &cp
	return repo.ActivateCreated, trial, time.Time{}, nil
}

func (f *fakeTrialRepo) Terminate(_ context.Context, identity int64, reason string, endedAt time.Time) (*model.ActiveTrial, error) {
	cur := f.active[identity]
	if cur == nil {
		return nil, nil
	}
	e := endedAt
	f.used[identity] = &model.UsedTrial{
		Identity: identity,
		Status:   model.UsedTrialStatusUsed,
		Reason:   reason,
		EndedAt:  &e,
	}
	delete(f.active, identity)
	cp := *cur
	return &cp, nil
}

func (f *fakeTrialRepo) ListActiveTrials(_ context.Context) ([]model.ActiveTrial, error) {
	out := make([]model.ActiveTrial, 0, len(f.active))
	for _, t := range f.active {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeTrialRepo) DeleteActiveTrial(_ context.Context, identity int64) error {
	delete(f.active, identity)
	return nil
}

func (f *fakeTrialRepo) DeleteStaleReservations(_ context.Context, reservedBefore time.Time) (int64, error) {
	var n int64
	for id, u := range f.used {
		if !u.Consumed() && u.ReservedAt != nil && u.ReservedAt.Before(reservedBefore) {
			delete(f.used, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeTrialRepo) Counts(_ context.Context) (model.TrialCounts, error) {
	counts := model.TrialCounts{Active: int64(len(f.active))}
	for _, u := range f.used {
		if u.Consumed() {
			counts.Used++
		} else {
			counts.Reserved++
		}
	}
	return counts, nil
}

type fakeInviteRepo struct {
	invites     map[int64]*model.InviteRecord
	pendings    *fakePendingRepo
	finalizeErr error
}

func newFakeInviteRepo(pendings *fakePendingRepo) *fakeInviteRepo {
	return &fakeInviteRepo{
		invites:  make(map[int64]*model.InviteRecord),
		pendings: pendings,
	}
}

func (f *fakeInviteRepo) GetInvite(_ context.Context, identity int64) (*model.InviteRecord, error) {
	return f.invites[identity], nil
}

func (f *fakeInviteRepo) ClaimCreating(_ context.Context, identity int64, now time.Time) (repo.InviteClaimOutcome, *model.InviteRecord, error) {
	if inv := f.invites[identity]; inv != nil {
		if inv.Usable(now) {
			cp := *inv
			return repo.InviteClaimReady, &cp, nil
		}
		if inv.Status == model.InviteStatusCreating && !inv.Stale(now) {
			return repo.InviteClaimInProgress, nil, nil
		}
		delete(f.invites, identity)
	}
	f.invites[identity] = &model.InviteRecord{
		Identity:  identity,
		Status:    model.InviteStatusCreating,
		BaseModel: model.BaseModel{CreatedAt: now},
	}
	return repo.InviteClaimCreating, nil, nil
}

func (f *fakeInviteRepo) FinalizeReady(_ context.Context, identity int64, reference string, expiresAt time.Time) (*model.InviteRecord, error) {
	if f.finalizeErr != nil {
		return nil, f.finalizeErr
	}
	inv := f.invites[identity]
	if inv == nil {
		return nil, fmt.Errorf("no placeholder for identity %d", identity)
	}
	inv.Status = model.InviteStatusReady
	inv.Reference = reference
	inv.ExpiresAt = expiresAt.Truncate(time.Second)
	if f.pendings != nil {
		delete(f.pendings.records, identity)
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeInviteRepo) DeleteInvite(_ context.Context, identity int64) error {
	delete(f.invites, identity)
	return nil
}

func (f *fakeInviteRepo) DeleteStaleCreating(_ context.Context, createdBefore time.Time) (int64, error) {
	var n int64
	for id, inv := range f.invites {
		if inv.Status == model.InviteStatusCreating && inv.CreatedAt.Before(createdBefore) {
			delete(f.invites, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeInviteRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, inv := range f.invites {
		if inv.Status == model.InviteStatusReady && inv.ExpiresAt.Before(now) {
			delete(f.invites, id)
			n++
		}
	}
	return n, nil
}

type fakeAuditRepo struct {
	events []model.AuditEvent
}

func (f *fakeAuditRepo) Append(_ context.Context, event *model.AuditEvent) error {
	if event.ID == "" {
		event.ID = fmt.Sprintf("evt-%04d", len(f.events))
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, req *model.AuditQueryReq) ([]model.AuditEvent, error) {
	var out []model.AuditEvent
	for i := len(f.events) - 1; i >= 0; i-- {
		e := f.events[i]
		if req.Identity != 0 && e.Identity != req.Identity {
			continue
		}
		if req.Action != "" && e.Action != req.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeAuditRepo) hasAction(action string) bool {
	for _, e := range f.events {
		if e.Action == action {
			return true
		}
	}
	return false
}

type botMessage struct {
	ChatID int64
	Text   string
}

type fakeBot struct {
	self      *telegram.User
	messages  []botMessage
	links     int
	linkErr   error
	removed   []int64
	removeErr error
	members   map[int64]string
	memberErr error
}

func newFakeBot() *fakeBot {
	return &fakeBot{
		self:    &telegram.User{ID: 4242, IsBot: true, FirstName: "gatebot"},
		members: make(map[int64]string),
	}
}

func (f *fakeBot) SendMessage(_ context.Context, chatID int64, text string) error {
	f.messages = append(f.messages, botMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeBot) CreateChatInviteLink(_ context.Context, _ int64, memberLimit int, expireAt time.Time) (*telegram.ChatInviteLink, error) {
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	f.links++
	return &telegram.ChatInviteLink{
		InviteLink:  fmt.Sprintf("https://t.me/+fake%d", f.links),
		ExpireDate:  expireAt.Unix(),
		MemberLimit: memberLimit,
	}, nil
}

func (f *fakeBot) ForceRemove(_ context.Context, _ int64, userID int64) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, userID)
	return nil
}

func (f *fakeBot) GetChatMember(_ context.Context, _ int64, userID int64) (*telegram.ChatMember, error) {
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	status, ok := f.members[userID]
	if !ok {
		status = telegram.MemberStatusLeft
	}
	return &telegram.ChatMember{Status: status, User: telegram.User{ID: userID}}, nil
}

func (f *fakeBot) Self() *telegram.User { return f.self }

func (f *fakeBot) texts() []string {
	out := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m.Text)
	}
	return out
}

func (f *fakeBot) lastText() string {
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1].Text
}

type fakeScheduler struct {
	scheduled []*model.ActiveTrial
	err       error
}

func (f *fakeScheduler) ScheduleTrial(_ context.Context, trial *model.ActiveTrial) error {
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, trial)
	return nil
}

type fakeRep struct {
	verdicts map[string]*reputation.Verdict
}

func (f *fakeRep) Check(_ context.Context, ip string) *reputation.Verdict {
	if v, ok := f.verdicts[ip]; ok {
		return v
	}
	return &reputation.Verdict{IP: ip, CountryCode: "DE"}
}

func testConfig() *config.AppConfig {
	c := &config.AppConfig{}
	c.Telegram.ChannelID = -1001234567890
	c.Trial = config.TrialConf{
		SigningSecret:          strings.Repeat("s", 32),
		BaseHours:              72,
		WeekendHours:           120,
		BaseReminderOffsets:    []int{24, 48},
		WeekendReminderOffsets: []int{24, 72, 96},
		CooldownDays:           30,
		InviteExpiryHours:      5,
		BlockedPhonePrefixes:   []string{"+91"},
		SupportContact:         "@gate_support",
	}
	c.Reputation.BlockedCountries = []string{"PK"}
	c.Fallback.AllowedOrigins = []string{"https://gate.example.com"}
	return c
}

type testEnv struct {
	services *Services
	pendings *fakePendingRepo
	trials   *fakeTrialRepo
	invites  *fakeInviteRepo
	audits   *fakeAuditRepo
	bot      *fakeBot
	sched    *fakeScheduler
	rep      *fakeRep
	clock    *fixedClock
	conf     *config.AppConfig
}

// wednesday is the default join time; weekend tests use their own.
var wednesday = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

func newTestEnv() *testEnv {
	conf := testConfig()
	pendings := newFakePendingRepo()
	trials := newFakeTrialRepo()
	invites := newFakeInviteRepo(pendings)
	audits := &fakeAuditRepo{}
	repos := &repo.Repositories{
		Pending: pendings,
		Trial:   trials,
		Invite:  invites,
		Audit:   audits,
	}
	bot := newFakeBot()
	sched := &fakeScheduler{}
	rep := &fakeRep{verdicts: make(map[string]*reputation.Verdict)}
	clock := &fixedClock{now: wednesday}

	return &testEnv{
		services: NewServices(conf, repos, bot, rep, sched, nil, clock),
		pendings: pendings,
		trials:   trials,
		invites:  invites,
		audits:   audits,
		bot:      bot,
		sched:    sched,
		rep:      rep,
		clock:    clock,
		conf:     conf,
	}
}
