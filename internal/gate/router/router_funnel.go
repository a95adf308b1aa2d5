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

	"github.com/gofiber/fiber/v2"

	"github.com/go-gatehouse/gatehouse/internal/gate/consts"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	httpx "github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/http/middleware"
)

// phoneSource labels phone numbers submitted through the mini app, as
// opposed to contact shares arriving through the bot.
const phoneSource = "webapp"

func (rt *Router) funnelRouter(r fiber.Router) {
	user := r.Group("/user")
	{
		user.Get("/status", rt.optionalInitData, rt.statusRateLimit(), rt.userStatus)
	}

	verify := r.Group("/verify", rt.requireInitData)
	{
		verify.Post("/ip", middleware.RateLimitMiddleware(rt.limiter, consts.RateRuleIP, middleware.KeyByIP), rt.verifyIP)
		verify.Post("/submit", rt.limitIdentityAction(consts.RateRuleFunnelAction, "submit"), rt.verifySubmit)
		verify.Post("/phone", rt.limitIdentityAction(consts.RateRuleFunnelAction, "phone"), rt.verifyPhone)
	}

	fallback := r.Group("/fallback")
	{
		fallback.Post("/verify", rt.limitIPAction(consts.RateRuleFallback, "verify"), rt.fallbackVerify)
	}
}

// statusRateLimit keys authenticated polls on the identity and anonymous
// ones on the address, under the stricter anonymous rule.
func (rt *Router) statusRateLimit() fiber.Handler {
	return middleware.RateLimitSelectMiddleware(rt.limiter, func(c *fiber.Ctx) (string, string) {
		if identity := authedIdentity(c); identity != 0 {
			return consts.RateRuleIdentity, strconv.FormatInt(identity, 10)
		}
		return consts.RateRuleIPStrict, middleware.ClientIP(c)
	})
}

// userStatus reports the caller's funnel position and trial state. An
// anonymous caller may name an identity with ?tg_id=, an authenticated
// one may only ask about itself.
func (rt *Router) userStatus(c *fiber.Ctx) error {
	identity := authedIdentity(c)

	if claimed := c.Query("tg_id"); claimed != "" {
		parsed, err := strconv.ParseInt(claimed, 10, 64)
		if err != nil || parsed <= 0 {
			c.Status(fiber.StatusBadRequest)
			return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "tg_id must be a positive integer", c.Path())
		}
		if identity != 0 && parsed != identity {
			c.Status(fiber.StatusUnauthorized)
			return httpx.WithRepErrMsg(c, httpx.LaunchDataInvalid.Code, "tg_id does not match the launch data", c.Path())
		}
		identity = parsed
	}

	if identity == 0 {
		c.Status(fiber.StatusUnauthorized)
		return httpx.WithRepErrMsg(c, httpx.Unauthorized.Code, httpx.Unauthorized.Msg, c.Path())
	}

	status, err := rt.services.Funnel.Status(c.UserContext(), identity)
	if err != nil {
		return replyErr(c, err)
	}

	c.Locals(consts.DETAIL, status)
	return nil
}

// verifyIP runs the address reputation check against the connecting
// address. The request body is ignored on this surface, clients do not
// get to pick the address they are checked as.
func (rt *Router) verifyIP(c *fiber.Ctx) error {
	resp, err := rt.services.Funnel.CheckIP(c.UserContext(), authedIdentity(c), middleware.ClientIP(c))
	if err != nil {
		return replyErr(c, err)
	}

	c.Locals(consts.DETAIL, resp)
	return nil
}

// verifySubmit takes the identity form step.
func (rt *Router) verifySubmit(c *fiber.Ctx) error {
	var req model.SubmitStep1Req
	if err := c.BodyParser(&req); err != nil {
		c.Status(fiber.StatusBadRequest)
		return httpx.WithRepErrMsg(c, httpx.RequestParameterParsingFailed.Code, httpx.RequestParameterParsingFailed.Msg, c.Path())
	}

	if _, err := rt.services.Funnel.SubmitStep1(c.UserContext(), authedIdentity(c), &req, middleware.ClientIP(c)); err != nil {
		return replyErr(c, err)
	}

	c.Locals(consts.OPERATION, "")
	return nil
}

// verifyPhone takes the phone verification step from the mini app.
func (rt *Router) verifyPhone(c *fiber.Ctx) error {
	var req model.VerifyPhoneReq
	if err := c.BodyParser(&req); err != nil {
		c.Status(fiber.StatusBadRequest)
		return httpx.WithRepErrMsg(c, httpx.RequestParameterParsingFailed.Code, httpx.RequestParameterParsingFailed.Msg, c.Path())
	}

	if _, err := rt.services.Funnel.VerifyPhone(c.UserContext(), authedIdentity(c), req.Phone, phoneSource); err != nil {
		return replyErr(c, err)
	}

	c.Locals(consts.OPERATION, "")
	return nil
}

// fallbackVerify serves the reduced no-script form. There is no init
// data here, the service layer cross-checks the claimed identity and the
// Origin/Referer headers instead.
func (rt *Router) fallbackVerify(c *fiber.Ctx) error {
	var req model.FallbackVerifyReq
	if err := c.BodyParser(&req); err != nil {
		c.Status(fiber.StatusBadRequest)
		return httpx.WithRepErrMsg(c, httpx.RequestParameterParsingFailed.Code, httpx.RequestParameterParsingFailed.Msg, c.Path())
	}

	origin := c.Get(fiber.HeaderOrigin)
	referer := c.Get(fiber.HeaderReferer)
	if _, err := rt.services.Funnel.FallbackVerify(c.UserContext(), &req, middleware.ClientIP(c), origin, referer); err != nil {
		return replyErr(c, err)
	}

	c.Locals(consts.OPERATION, "")
	return nil
}
