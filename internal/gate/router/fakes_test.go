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

package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
	"github.com/go-gatehouse/gatehouse/internal/gate/service"
	"github.com/go-gatehouse/gatehouse/internal/pkg/reputation"
	"github.com/go-gatehouse/gatehouse/internal/pkg/telegram"
	httpx "github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/ratelimit"
)

// In-memory counterparts of the repositories and outbound clients,
// enough to drive full requests through the app. Methods outside the
// handler paths stay on the embedded interface and panic if reached.

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type fakePendingRepo struct {
	repo.IPendingRepository
	records map[int64]*model.PendingVerification
}

func newFakePendingRepo() *fakePendingRepo {
	return &fakePendingRepo{records: make(map[int64]*model.PendingVerification)}
}

func (f *fakePendingRepo) GetPending(_ context.Context, identity int64) (*model.PendingVerification, error) {
	return f.records[identity], nil
}

func (f *fakePendingRepo) SavePending(_ context.Context, pending *model.PendingVerification) error {
	f.records[pending.Identity] = pending
	return nil
}

func (f *fakePendingRepo) DeletePending(_ context.Context, identity int64) error {
	delete(f.records, identity)
	return nil
}

func (f *fakePendingRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, p := range f.records {
		out[string(p.Status)]++
	}
	return out, nil
}

type fakeTrialRepo struct {
	repo.ITrialRepository
	active map[int64]*model.ActiveTrial
	used   map[int64]*model.UsedTrial
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
	repo.IInviteRepository
	invites  map[int64]*model.InviteRecord
	pendings *fakePendingRepo
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

type fakeBot struct {
	self    *telegram.User
	links   int
	linkErr error
}

func newFakeBot() *fakeBot {
	return &fakeBot{self: &telegram.User{ID: 4242, IsBot: true, FirstName: "gatebot"}}
}

func (f *fakeBot) SendMessage(_ context.Context, _ int64, _ string) error { return nil }

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

func (f *fakeBot) ForceRemove(_ context.Context, _ int64, _ int64) error { return nil }

func (f *fakeBot) GetChatMember(_ context.Context, _ int64, userID int64) (*telegram.ChatMember, error) {
	return &telegram.ChatMember{Status: telegram.MemberStatusLeft, User: telegram.User{ID: userID}}, nil
}

func (f *fakeBot) Self() *telegram.User { return f.self }

type fakeScheduler struct{}

func (f *fakeScheduler) ScheduleTrial(_ context.Context, _ *model.ActiveTrial) error { return nil }

type fakeRep struct{}

func (f *fakeRep) Check(_ context.Context, ip string) *reputation.Verdict {
	return &reputation.Verdict{IP: ip, CountryCode: "DE"}
}

const testBotToken = "7210644321:AAFakeTokenForRouterTests"

func testConfig() *config.AppConfig {
	c := &config.AppConfig{}
	c.Telegram.BotToken = testBotToken
	c.Telegram.ChannelID = -1001234567890
	c.Http = httpx.Http{
		Auth: httpx.Auth{
			SecretKey:      "router-test-admin-secret",
			AccessExpire:   30,
			InternalSecret: "router-test-internal-secret",
		},
	}
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
	c.Fallback.AllowedOrigins = []string{"https://gate.example.com"}
	return c
}

type routerEnv struct {
	router   *Router
	app      *fiber.App
	pendings *fakePendingRepo
	trials   *fakeTrialRepo
	invites  *fakeInviteRepo
	audits   *fakeAuditRepo
	bot      *fakeBot
	limiter  *ratelimit.MemoryLimiter
	clock    *fixedClock
	conf     *config.AppConfig
}

var wednesday = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

func newRouterEnv() *routerEnv {
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
	clock := &fixedClock{now: wednesday}
	services := service.NewServices(conf, repos, bot, &fakeRep{}, &fakeScheduler{}, nil, clock)

	rules := ratelimit.Conf{}
	rules.SetDefaults()
	limiter := ratelimit.NewMemoryLimiter(rules.Rules, ratelimit.WithClock(clock.Now))

	validator := ProvideInitDataValidator(conf)
	rt := NewRouter(&conf.Http, services, limiter, validator, nil)

	return &routerEnv{
		router:   rt,
		app:      rt.Router(),
		pendings: pendings,
		trials:   trials,
		invites:  invites,
		audits:   audits,
		bot:      bot,
		limiter:  limiter,
		clock:    clock,
		conf:     conf,
	}
}
