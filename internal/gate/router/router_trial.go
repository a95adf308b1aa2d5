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
)

func (rt *Router) trialRouter(r fiber.Router) {
	trial := r.Group("/trial", rt.requireInitData, rt.limitIdentity(consts.RateRuleIdentity))
	{
		trial.Get("/info", rt.trialInfo)
		trial.Post("/invite", rt.trialInvite)
	}
}

// trialInfo reports the remaining time of the caller's running trial.
func (rt *Router) trialInfo(c *fiber.Ctx) error {
	info, err := rt.services.Trial.TrialInfo(c.UserContext(), authedIdentity(c))
	if err != nil {
		return replyErr(c, err)
	}

	c.Locals(consts.DETAIL, info)
	return nil
}

// trialInvite grants the caller a trial and hands out the single-use
// invite link. Re-asking while a link exists or is being created answers
// with the existing state rather than an error.
func (rt *Router) trialInvite(c *fiber.Ctx) error {
	resp, err := rt.services.Trial.IssueInvite(c.UserContext(), authedIdentity(c))
	if err != nil {
		return replyErr(c, err)
	}

	c.Locals(consts.DETAIL, resp)
	return nil
}
