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

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
)

// MessageSender delivers one direct message. *telegram.Client satisfies
// it; tests capture the texts with a fake.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Notifier composes and sends every user-facing direct message. All
// sends are best effort: callers log failures and carry on, a missed
// message never rolls back a lifecycle decision.
type Notifier struct {
	sender  MessageSender
	support string
}

// NewNotifier builds the notifier. The support contact, when configured,
// is appended to the messages that leave the user with nowhere to go.
func NewNotifier(sender MessageSender, conf *config.TrialConf) *Notifier {
	return &Notifier{sender: sender, support: conf.SupportContact}
}

func (n *Notifier) withSupport(msg string) string {
	if n.support == "" {
		return msg
	}
	return fmt.Sprintf("%s Questions? Contact %s.", msg, n.support)
}

const endTimeLayout = "2006-01-02 15:04 UTC"

// Welcome greets a freshly activated trial.
func (n *Notifier) Welcome(ctx context.Context, identity int64, trial *model.ActiveTrial) error {
	msg := fmt.Sprintf("Welcome aboard! Your %d-hour trial starts now and runs until %s. Enjoy the channel!",
		trial.TotalHours, trial.TrialEndAt.UTC().Format(endTimeLayout))
	return n.sender.SendMessage(ctx, identity, msg)
}

// Reminder warns about the approaching end of a trial.
func (n *Notifier) Reminder(ctx context.Context, identity int64, remainingHours int) error {
	msg := fmt.Sprintf("Heads up: about %d hours left in your trial.", remainingHours)
	return n.sender.SendMessage(ctx, identity, n.withSupport(msg))
}

// Ended reports a finished trial with its usage summary.
func (n *Notifier) Ended(ctx context.Context, identity int64, trial *model.ActiveTrial, endedAt time.Time, reason string) error {
	used := endedAt.Sub(trial.JoinTime).Hours()
	if used < 0 {
		used = 0
	}
	if max := float64(trial.TotalHours); used > max {
		used = max
	}

	var msg string
	if reason == model.EndReasonLeft {
		msg = fmt.Sprintf("Sorry to see you go. You used %.1f of your %d trial hours.", used, trial.TotalHours)
	} else {
		msg = fmt.Sprintf("Your %d-hour trial has ended. You used %.1f hours.", trial.TotalHours, used)
	}
	return n.sender.SendMessage(ctx, identity, n.withSupport(msg))
}

// farFutureYears marks a cooldown deadline that came from an
// unparseable end timestamp; no date is worth showing for it.
const farFutureYears = 10

// Cooldown tells a re-joining user how long the wait still is.
func (n *Notifier) Cooldown(ctx context.Context, identity int64, until, now time.Time) error {
	msg := "You have already used your free trial."
	if days := cooldownDaysLeft(until, now); days > 0 && until.Before(now.AddDate(farFutureYears, 0, 0)) {
		msg = fmt.Sprintf("You have already used your free trial. You can try joining again in %d day(s).", days)
	}
	return n.sender.SendMessage(ctx, identity, n.withSupport(msg))
}

// InviteLink delivers the personal single-use invite.
func (n *Notifier) InviteLink(ctx context.Context, identity int64, link string, expiresAt, now time.Time) error {
	hours := int(expiresAt.Sub(now).Hours())
	if hours < 1 {
		hours = 1
	}
	msg := fmt.Sprintf("You are verified! Here is your personal invite link (single use, valid about %d hours):\n%s", hours, link)
	return n.sender.SendMessage(ctx, identity, msg)
}

// InvitePreparing asks the user to retry while a concurrent creation
// finishes.
func (n *Notifier) InvitePreparing(ctx context.Context, identity int64) error {
	return n.sender.SendMessage(ctx, identity,
		"Your invite link is being prepared. Please try again in a few seconds.")
}

// InviteFailed reports a failed link creation; the user may retry.
func (n *Notifier) InviteFailed(ctx context.Context, identity int64) error {
	return n.sender.SendMessage(ctx, identity,
		n.withSupport("We could not create your invite link right now. Please try again shortly."))
}

// AlreadyUsed reminds a consumed identity that the trial was one-shot.
func (n *Notifier) AlreadyUsed(ctx context.Context, identity int64) error {
	return n.sender.SendMessage(ctx, identity,
		n.withSupport("You have already used your free trial."))
}

// TrialStatus summarizes a running trial.
func (n *Notifier) TrialStatus(ctx context.Context, identity int64, trial *model.ActiveTrial, now time.Time) error {
	msg := fmt.Sprintf("Your trial is running: about %.1f hours left, until %s.",
		round1(trial.Remaining(now).Hours()), trial.TrialEndAt.UTC().Format(endTimeLayout))
	return n.sender.SendMessage(ctx, identity, msg)
}

// ContactRejected corrects a typed number or a foreign contact card.
func (n *Notifier) ContactRejected(ctx context.Context, identity int64) error {
	return n.sender.SendMessage(ctx, identity,
		"Please use the share-contact button to send your own number. Typed numbers or other people's contacts cannot be accepted.")
}

// PhoneBlocked reports a blocklisted calling code.
func (n *Notifier) PhoneBlocked(ctx context.Context, identity int64) error {
	return n.sender.SendMessage(ctx, identity,
		n.withSupport("Unfortunately, numbers from your region cannot join this trial."))
}

// RegionBlocked reports a blocklisted or anonymized address.
func (n *Notifier) RegionBlocked(ctx context.Context, identity int64) error {
	return n.sender.SendMessage(ctx, identity,
		n.withSupport("Unfortunately, this trial is not available from your region or network."))
}

// VerifyFirst points the user back to the verification steps.
func (n *Notifier) VerifyFirst(ctx context.Context, identity int64) error {
	return n.sender.SendMessage(ctx, identity,
		"Please complete the verification steps first, then share your contact.")
}

// StartGreeting answers /start for a user with no history.
func (n *Notifier) StartGreeting(ctx context.Context, identity int64) error {
	return n.sender.SendMessage(ctx, identity,
		"Welcome! Complete the quick verification to receive your personal invite link to the channel.")
}
