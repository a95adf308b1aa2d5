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
	"github.com/gofiber/fiber/v2"

	"github.com/go-gatehouse/gatehouse/internal/gate/consts"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	httpx "github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/http/jwt"
	"github.com/go-gatehouse/gatehouse/pkg/http/middleware"
)

func (rt *Router) internalRouter(r fiber.Router) {
	// handoff for the human-review tooling; rate limited before the
	// secret check so the shared secret cannot be brute-forced quietly
	r.Get("/verification/:identity",
		rt.limitIPAction(consts.RateRuleHandoff, "verification"),
		middleware.InternalAuthMiddleware(rt.httpConf.Auth.InternalSecret),
		rt.handoffVerification,
	)

	admin := r.Group("/admin", middleware.AuthorizationMiddleware(rt.httpConf.Auth.SecretKey))
	{
		admin.Post("/trial/:identity/terminate", rt.adminTerminate)
		admin.Get("/audit", rt.adminAudit)
		admin.Get("/overview", rt.adminOverview)
	}
}

// handoffVerification hands the verification record to the manual
// review tooling.
func (rt *Router) handoffVerification(c *fiber.Ctx) error {
	identity, ok := parseIdentityParam(c, "identity")
	if !ok {
		c.Status(fiber.StatusBadRequest)
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "identity must be a positive integer", c.Path())
	}

	pending, err := rt.services.Handoff.Verification(c.UserContext(), identity)
	if err != nil {
		return replyErr(c, err)
	}
	if pending == nil {
		c.Status(fiber.StatusNotFound)
		return httpx.WithRepErrMsg(c, httpx.VerificationNotFound.Code, httpx.VerificationNotFound.Msg, c.Path())
	}

	c.Locals(consts.DETAIL, pending)
	return nil
}

// adminTerminate ends a running trial ahead of schedule. The operator
// from the JWT lands in the audit trail.
func (rt *Router) adminTerminate(c *fiber.Ctx) error {
	identity, ok := parseIdentityParam(c, "identity")
	if !ok {
		c.Status(fiber.StatusBadRequest)
		return httpx.WithRepErrMsg(c, httpx.BadRequest.Code, "identity must be a positive integer", c.Path())
	}

	operator := "unknown"
	if claims, ok := c.Locals("claims").(*jwt.AuthClaims); ok && claims.Operator != "" {
		operator = claims.Operator
	}

	trial, err := rt.services.Admin.TerminateTrial(c.UserContext(), identity, operator)
	if err != nil {
		return replyErr(c, err)
	}

	c.Locals(consts.DETAIL, trial)
	return nil
}

// adminAudit lists audit events, newest first.
func (rt *Router) adminAudit(c *fiber.Ctx) error {
	var req model.AuditQueryReq
	if err := c.QueryParser(&req); err != nil {
		c.Status(fiber.StatusBadRequest)
		return httpx.WithRepErrMsg(c, httpx.RequestParameterParsingFailed.Code, httpx.RequestParameterParsingFailed.Msg, c.Path())
	}

	events, err := rt.services.Admin.AuditEvents(c.UserContext(), &req)
	if err != nil {
		return replyErr(c, err)
	}

	c.Locals(consts.DETAIL, events)
	return nil
}

// adminOverview reports trial counts, funnel states and queue depths.
func (rt *Router) adminOverview(c *fiber.Ctx) error {
	overview, err := rt.services.Admin.Overview(c.UserContext())
	if err != nil {
		return replyErr(c, err)
	}

	c.Locals(consts.DETAIL, overview)
	return nil
}
