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
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"github.com/go-gatehouse/gatehouse/internal/gate/service"
	"github.com/go-gatehouse/gatehouse/internal/pkg/telegram"
	httpx "github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/http/middleware"
	"github.com/go-gatehouse/gatehouse/pkg/log"
)

const (
	// initDataHeader carries raw mini-app init data. The "tma" scheme on
	// the Authorization header is accepted as an alternative.
	initDataHeader = "X-Telegram-Init-Data"

	identityLocal = "identity"
)

// rawInitData pulls the init data string off the request.
func rawInitData(c *fiber.Ctx) string {
	if raw := c.Get(initDataHeader); raw != "" {
		return raw
	}
	scheme, data, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
	if ok && strings.EqualFold(scheme, "tma") {
		return strings.TrimSpace(data)
	}
	return ""
}

// requireInitData authenticates the request via mini-app init data and
// stores the proven user id for handlers downstream.
func (rt *Router) requireInitData(c *fiber.Ctx) error {
	raw := rawInitData(c)
	if raw == "" {
		c.Status(fiber.StatusUnauthorized)
		return httpx.WithRepErrMsg(c, httpx.Unauthorized.Code, httpx.Unauthorized.Msg, c.Path())
	}
	user, err := rt.validator.Validate(raw)
	if err != nil {
		return replyInitDataErr(c, err)
	}
	c.Locals(identityLocal, user.ID)
	return c.Next()
}

// optionalInitData authenticates when init data is present and lets the
// request through anonymously when it is not. Present but invalid init
// data is still rejected, a client that sends it must send it right.
func (rt *Router) optionalInitData(c *fiber.Ctx) error {
	raw := rawInitData(c)
	if raw == "" {
		return c.Next()
	}
	user, err := rt.validator.Validate(raw)
	if err != nil {
		return replyInitDataErr(c, err)
	}
	c.Locals(identityLocal, user.ID)
	return c.Next()
}

func replyInitDataErr(c *fiber.Ctx, err error) error {
	c.Status(fiber.StatusUnauthorized)
	if errors.Is(err, telegram.ErrInitDataExpired) {
		return httpx.WithRepErrMsg(c, httpx.LaunchDataExpired.Code, httpx.LaunchDataExpired.Msg, c.Path())
	}
	return httpx.WithRepErrMsg(c, httpx.LaunchDataInvalid.Code, httpx.LaunchDataInvalid.Msg, c.Path())
}

// authedIdentity returns the user id the init data proved, zero for an
// anonymous request.
func authedIdentity(c *fiber.Ctx) int64 {
	id, _ := c.Locals(identityLocal).(int64)
	return id
}

// limitIdentity applies the rule keyed on the authenticated identity.
// Must run after requireInitData.
func (rt *Router) limitIdentity(rule string) fiber.Handler {
	return middleware.RateLimitSelectMiddleware(rt.limiter, func(c *fiber.Ctx) (string, string) {
		return rule, strconv.FormatInt(authedIdentity(c), 10)
	})
}

// limitIdentityAction keys on identity plus the action name so each
// funnel step gets its own budget.
func (rt *Router) limitIdentityAction(rule, action string) fiber.Handler {
	return middleware.RateLimitSelectMiddleware(rt.limiter, func(c *fiber.Ctx) (string, string) {
		return rule, strconv.FormatInt(authedIdentity(c), 10) + ":" + action
	})
}

// limitIPAction keys on the client address plus the action name, for
// surfaces that carry no proven identity.
func (rt *Router) limitIPAction(rule, action string) fiber.Handler {
	return middleware.RateLimitSelectMiddleware(rt.limiter, func(c *fiber.Ctx) (string, string) {
		return rule, middleware.ClientIP(c) + ":" + action
	})
}

// replyErr translates service errors into response envelopes. Wrapped
// input errors carry plain-language context, everything else answers
// with the fixed message for its code.
func replyErr(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.Status(fiber.StatusBadRequest)
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, err.Error(), c.Path())
	case errors.Is(err, service.ErrFunnelOrder):
		c.Status(fiber.StatusConflict)
		return httpx.WithRepErrMsg(c, httpx.VerificationStepInvalid.Code, httpx.VerificationStepInvalid.Msg, c.Path())
	case errors.Is(err, service.ErrRegionBlocked):
		c.Status(fiber.StatusForbidden)
		return httpx.WithRepErrMsg(c, httpx.RegionBlocked.Code, httpx.RegionBlocked.Msg, c.Path())
	case errors.Is(err, service.ErrPhoneBlocked):
		c.Status(fiber.StatusForbidden)
		return httpx.WithRepErrMsg(c, httpx.PhoneBlocked.Code, httpx.PhoneBlocked.Msg, c.Path())
	case errors.Is(err, service.ErrTrialUsed):
		c.Status(fiber.StatusConflict)
		return httpx.WithRepErrMsg(c, httpx.TrialAlreadyUsed.Code, httpx.TrialAlreadyUsed.Msg, c.Path())
	case errors.Is(err, service.ErrTrialActive):
		c.Status(fiber.StatusConflict)
		return httpx.WithRepErrMsg(c, httpx.TrialAlreadyActive.Code, httpx.TrialAlreadyActive.Msg, c.Path())
	case errors.Is(err, service.ErrNoActiveTrial):
		c.Status(fiber.StatusNotFound)
		return httpx.WithRepErrMsg(c, httpx.TrialNotFound.Code, httpx.TrialNotFound.Msg, c.Path())
	case errors.Is(err, service.ErrInviteCreation):
		c.Status(fiber.StatusInternalServerError)
		return httpx.WithRepErrMsg(c, httpx.InviteCreateFailed.Code, httpx.InviteCreateFailed.Msg, c.Path())
	case errors.Is(err, service.ErrOriginNotAllowed):
		c.Status(fiber.StatusForbidden)
		return httpx.WithRepErrMsg(c, httpx.Forbidden.Code, httpx.Forbidden.Msg, c.Path())
	default:
		log.Errorw("request failed", "path", c.Path(), "err", err)
		c.Status(fiber.StatusInternalServerError)
		return httpx.WithRepErrMsg(c, httpx.InternalError.Code, httpx.InternalError.Msg, c.Path())
	}
}

// parseIdentityParam reads a positive user id from a path parameter.
func parseIdentityParam(c *fiber.Ctx, name string) (int64, bool) {
	identity, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || identity <= 0 {
		return 0, false
	}
	return identity, true
}
