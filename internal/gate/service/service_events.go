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
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
	"github.com/go-gatehouse/gatehouse/internal/pkg/telegram"
	"github.com/go-gatehouse/gatehouse/pkg/log"
)

// updateHandleTimeout bounds the work done for one bot update.
const updateHandleTimeout = 30 * time.Second

// EventService consumes the bot update stream: membership transitions
// on the gated channel drive trial activation and termination, and
// direct messages drive the contact step of the funnel.
type EventService struct {
	funnel    *FunnelService
	trial     *TrialService
	trialRepo repo.ITrialRepository
	notifier  *Notifier
	tg        BotClient
	clock     Clock
	conf      *config.TrialConf
	channelID int64
}

func NewEventService(
	funnel *FunnelService,
	trial *TrialService,
	trialRepo repo.ITrialRepository,
	notifier *Notifier,
	tg BotClient,
	clock Clock,
	conf *config.TrialConf,
	channelID int64,
) *EventService {
	return &EventService{
		funnel:    funnel,
		trial:     trial,
		trialRepo: trialRepo,
		notifier:  notifier,
		tg:        tg,
		clock:     clock,
		conf:      conf,
		channelID: channelID,
	}
}

// Run consumes updates until the channel closes. Each update gets its
// own bounded context; one slow or failing update never stalls the
// stream for long.
func (es *EventService) Run(updates <-chan *telegram.Update) {
	for upd := range updates {
		es.Handle(upd)
	}
	log.Infow("update stream closed, event service stopping")
}

// Handle dispatches one update.
func (es *EventService) Handle(upd *telegram.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), updateHandleTimeout)
	defer cancel()

	switch {
	case upd.ChatMember != nil:
		es.handleMembership(ctx, upd.ChatMember)
	case upd.Message != nil:
		es.handleMessage(ctx, upd.Message)
	}
}

// handleMembership reacts to join and leave transitions on the gated
// channel. Removals performed by the bot itself are ignored, otherwise
// every forced removal would terminate the trial it just terminated.
func (es *EventService) handleMembership(ctx context.Context, m *telegram.ChatMemberUpdated) {
	if m.Chat.ID != es.channelID {
		return
	}
	identity := m.NewChatMember.User.ID
	if m.NewChatMember.User.IsBot {
		return
	}

	switch {
	case m.OldChatMember.IsGone() && m.NewChatMember.IsMember():
		log.Infow("channel join", "identity", identity)
		if _, err := es.trial.ActivateOnJoin(ctx, identity); err != nil {
			log.Errorw("join activation failed", "identity", identity, "error", err)
		}

	case m.OldChatMember.IsMember() && m.NewChatMember.IsGone():
		if self := es.tg.Self(); self != nil && m.From.ID == self.ID {
			log.Debugw("ignoring bot-initiated removal", "identity", identity)
			return
		}
		log.Infow("channel leave", "identity", identity)
		if _, err := es.trial.Terminate(ctx, identity, model.EndReasonLeft, "leave"); err != nil {
			log.Errorw("leave termination failed", "identity", identity, "error", err)
		}
	}
}

// handleMessage reacts to direct messages: shared contacts feed the
// phone step, /start resumes the funnel, and typed phone numbers get a
// corrective prompt.
func (es *EventService) handleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil || msg.From.IsBot || msg.Chat.Type != "private" {
		return
	}
	identity := msg.From.ID

	switch {
	case msg.Contact != nil:
		es.handleContact(ctx, identity, msg.Contact)
	case strings.HasPrefix(msg.Text, "/start"):
		es.handleStart(ctx, identity)
	case looksLikePhone(msg.Text):
		es.send(es.notifier.ContactRejected(ctx, identity), identity)
	}
}

// handleContact runs the phone step off a shared contact card and, when
// it verifies, issues the invite in the same breath.
func (es *EventService) handleContact(ctx context.Context, identity int64, contact *telegram.Contact) {
	used, err := es.trialRepo.GetUsedTrial(ctx, identity)
	if err != nil {
		log.Errorw("used-trial lookup failed", "identity", identity, "error", err)
		return
	}
	if used != nil && used.Consumed() {
		es.send(es.notifier.AlreadyUsed(ctx, identity), identity)
		return
	}

	// Only the sender's own card proves the number.
	if contact.UserID != identity {
		es.send(es.notifier.ContactRejected(ctx, identity), identity)
		return
	}

	if _, err := es.funnel.VerifyPhone(ctx, identity, contact.PhoneNumber, "bot_contact"); err != nil {
		switch {
		case errors.Is(err, ErrPhoneBlocked):
			es.send(es.notifier.PhoneBlocked(ctx, identity), identity)
		case errors.Is(err, ErrRegionBlocked):
			es.send(es.notifier.RegionBlocked(ctx, identity), identity)
		case errors.Is(err, ErrFunnelOrder), errors.Is(err, ErrInvalidInput):
			es.send(es.notifier.VerifyFirst(ctx, identity), identity)
		default:
			log.Errorw("phone verification failed", "identity", identity, "error", err)
		}
		return
	}

	resp, err := es.trial.IssueInvite(ctx, identity)
	if err != nil {
		switch {
		case errors.Is(err, ErrTrialUsed):
			es.send(es.notifier.AlreadyUsed(ctx, identity), identity)
		case errors.Is(err, ErrTrialActive):
			es.sendTrialStatus(ctx, identity)
		case errors.Is(err, ErrFunnelOrder):
			es.send(es.notifier.VerifyFirst(ctx, identity), identity)
		default:
			log.Errorw("invite issuance failed", "identity", identity, "error", err)
			es.send(es.notifier.InviteFailed(ctx, identity), identity)
		}
		return
	}
	if resp.InProgress {
		es.send(es.notifier.InvitePreparing(ctx, identity), identity)
		return
	}
	es.send(es.notifier.InviteLink(ctx, identity, resp.InviteLink, time.Unix(resp.ExpiresAt, 0), es.clock.Now()), identity)
}

// handleStart resumes wherever the user left off. A channel member with
// no recorded trial gets one restored on the spot.
func (es *EventService) handleStart(ctx context.Context, identity int64) {
	now := es.clock.Now()

	used, err := es.trialRepo.GetUsedTrial(ctx, identity)
	if err != nil {
		log.Errorw("used-trial lookup failed", "identity", identity, "error", err)
		return
	}
	if used != nil && used.Consumed() {
		until := used.CooldownUntil(es.conf.CooldownDays)
		if now.Before(until) {
			es.send(es.notifier.Cooldown(ctx, identity, until, now), identity)
		} else {
			es.send(es.notifier.AlreadyUsed(ctx, identity), identity)
		}
		return
	}

	active, err := es.trialRepo.GetActiveTrial(ctx, identity)
	if err != nil {
		log.Errorw("active-trial lookup failed", "identity", identity, "error", err)
		return
	}
	if active != nil && !active.Expired(now) {
		es.send(es.notifier.TrialStatus(ctx, identity, active, now), identity)
		return
	}

	if active == nil && used == nil {
		member, merr := es.tg.GetChatMember(ctx, es.channelID, identity)
		if merr == nil && member.IsMember() {
			trial, aerr := es.trial.ActivateOnJoin(ctx, identity)
			if aerr != nil {
				log.Errorw("self-healing activation failed", "identity", identity, "error", aerr)
			} else if trial != nil {
				// The welcome message doubles as the /start reply.
				log.Infow("trial restored for untracked member", "identity", identity)
				return
			}
		}
	}

	es.send(es.notifier.StartGreeting(ctx, identity), identity)
}

func (es *EventService) sendTrialStatus(ctx context.Context, identity int64) {
	active, err := es.trialRepo.GetActiveTrial(ctx, identity)
	if err != nil || active == nil {
		return
	}
	es.send(es.notifier.TrialStatus(ctx, identity, active, es.clock.Now()), identity)
}

func (es *EventService) send(err error, identity int64) {
	if err != nil {
		log.Warnw("failed to send message", "identity", identity, "error", err)
	}
}

// looksLikePhone spots a typed phone number so the corrective prompt
// fires for it instead of silence.
func looksLikePhone(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, "/") {
		return false
	}
	digits := 0
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7
}
