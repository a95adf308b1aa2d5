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

// Package service implements the trial gate's business operations: the
// verification funnel, trial reservation and activation, invite
// issuance, termination, and the bot event handling that drives them.
// Persistence and atomicity live in the repo layer; external calls go
// through narrow client interfaces so tests can fake them.
package service

import (
	"context"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
	"github.com/go-gatehouse/gatehouse/internal/pkg/reputation"
	"github.com/go-gatehouse/gatehouse/internal/pkg/telegram"
	"github.com/go-gatehouse/gatehouse/pkg/log"
)

// Domain outcomes surfaced to callers. The router maps them onto the
// response envelope; the bot event handlers map them onto messages.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrFunnelOrder      = errors.New("previous verification step not completed")
	ErrRegionBlocked    = errors.New("region not eligible")
	ErrPhoneBlocked     = errors.New("phone region not eligible")
	ErrTrialUsed        = errors.New("trial already used")
	ErrTrialActive      = errors.New("trial already running")
	ErrNoActiveTrial    = errors.New("no active trial")
	ErrInviteCreation   = errors.New("invite creation failed")
	ErrOriginNotAllowed = errors.New("origin not allowed")
)

// BotClient is the slice of the Telegram client the services use.
// *telegram.Client satisfies it.
type BotClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	CreateChatInviteLink(ctx context.Context, chatID int64, memberLimit int, expireAt time.Time) (*telegram.ChatInviteLink, error)
	ForceRemove(ctx context.Context, chatID, userID int64) error
	GetChatMember(ctx context.Context, chatID, userID int64) (*telegram.ChatMember, error)
	Self() *telegram.User
}

// ReputationChecker resolves an IP reputation verdict. *reputation.Client
// satisfies it; lookups never error, they fail open (api_failed verdict).
type ReputationChecker interface {
	Check(ctx context.Context, ip string) *reputation.Verdict
}

// TrialScheduler registers the delayed reminder and expiry actions for a
// newly activated trial.
type TrialScheduler interface {
	ScheduleTrial(ctx context.Context, trial *model.ActiveTrial) error
}

// Input caps for the free-text funnel fields.
const (
	maxNameLen    = 100
	maxCountryLen = 100
	maxEmailLen   = 200
)

// maxIdentity bounds identities claimed through the fallback form.
const maxIdentity = 9_999_999_999_999

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	identityPattern = regexp.MustCompile(`^[0-9]+$`)
)

// sanitizeText trims, caps the rune length and HTML-escapes a free-text
// field, in that order.
func sanitizeText(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > maxLen {
		s = string(runes[:maxLen])
	}
	return html.EscapeString(s)
}

// validEmail accepts an empty value; a present one must match the
// address grammar.
func validEmail(s string) bool {
	return s == "" || emailPattern.MatchString(s)
}

// maskPhone keeps the calling-code prefix and hides the rest. Blocked
// numbers are stored only in this form.
func maskPhone(phone string) string {
	if len(phone) > 6 {
		phone = phone[:6]
	}
	return phone + "****"
}

// parseIdentity parses a self-claimed identity from the fallback form:
// digits only, positive, within the platform id range.
func parseIdentity(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if !identityPattern.MatchString(s) {
		return 0, errors.Wrap(ErrInvalidInput, "tg_id must be digits")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 || id > maxIdentity {
		return 0, errors.Wrap(ErrInvalidInput, "tg_id out of range")
	}
	return id, nil
}

// originAllowed applies the fallback form's allow-list to the request's
// Origin and Referer. Requests carrying neither header are accepted only
// from the local host, which is how the form is smoke-tested.
func originAllowed(origin, referer, ip string, allowed []string) bool {
	origin = strings.ToLower(strings.TrimSpace(origin))
	referer = strings.ToLower(strings.TrimSpace(referer))

	if origin == "" && referer == "" {
		return ip == "127.0.0.1" || ip == "::1"
	}
	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimRight(strings.TrimSpace(entry), "/"))
		if entry == "" {
			continue
		}
		if originMatches(origin, entry) || originMatches(referer, entry) {
			return true
		}
	}
	return false
}

// originMatches requires the allow-list entry to cover the whole origin,
// or to end at a path boundary. A plain prefix test would also admit
// sibling domains like example.com.evil.net.
func originMatches(value, entry string) bool {
	if value == "" {
		return false
	}
	return value == entry || strings.HasPrefix(value, entry+"/")
}

// round1 rounds to one decimal, the precision the status payloads use
// for hour counts.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// cooldownDaysLeft converts a cooldown deadline into whole days for the
// user-facing messages, never less than one while the deadline is ahead.
func cooldownDaysLeft(until, now time.Time) int {
	if !now.Before(until) {
		return 0
	}
	return int(math.Ceil(until.Sub(now).Hours() / 24))
}

// appendAudit records an audit event, logging instead of failing the
// calling operation when the write does not land.
func appendAudit(ctx context.Context, audits repo.IAuditRepository, event *model.AuditEvent) {
	if err := audits.Append(ctx, event); err != nil {
		log.Warnw("failed to append audit event",
			"action", event.Action, "identity", event.Identity, "error", err)
	}
}
