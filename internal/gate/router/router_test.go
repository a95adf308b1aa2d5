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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	httpx "github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/statemachine"
)

// envelope covers both the success and the error response shapes.
type envelope struct {
	Code   int             `json:"code"`
	Msg    string          `json:"msg"`
	ErrMsg string          `json:"errMsg"`
	Detail json.RawMessage `json:"detail"`
	Path   string          `json:"path"`
}

func (e *routerEnv) doReq(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	return env
}

func detailInto(t *testing.T, env envelope, out any) {
	t.Helper()
	require.NotEmpty(t, env.Detail, "response carried no detail")
	require.NoError(t, json.Unmarshal(env.Detail, out))
}

func postJSON(path, body, initData string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if initData != "" {
		req.Header.Set(initDataHeader, initData)
	}
	return req
}

func getWithInitData(path, initData string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if initData != "" {
		req.Header.Set(initDataHeader, initData)
	}
	return req
}

func TestHealthAndVersion(t *testing.T) {
	env := newRouterEnv()

	resp := env.doReq(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	resp = env.doReq(t, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Contains(t, info, "goVersion")
}

func TestUnknownRouteAnswersEnvelope(t *testing.T) {
	env := newRouterEnv()

	resp := env.doReq(t, httptest.NewRequest(http.MethodGet, "/no/such/route", nil))
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	rep := decodeEnvelope(t, resp)
	assert.Equal(t, httpx.NotFound.Code, rep.Code)
	assert.Equal(t, "/no/such/route", rep.Path)
}

func TestUserStatus_AnonymousWithClaimedIdentity(t *testing.T) {
	env := newRouterEnv()

	resp := env.doReq(t, httptest.NewRequest(http.MethodGet, "/api/user/status?tg_id=777", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var status model.StatusResp
	detailInto(t, decodeEnvelope(t, resp), &status)
	assert.Equal(t, int64(777), status.Identity)
	assert.Equal(t, statemachine.FunnelUnverified, status.Status)
	assert.True(t, status.CanStartTrial)
}

func TestUserStatus_AnonymousWithoutIdentityRejected(t *testing.T) {
	env := newRouterEnv()

	resp := env.doReq(t, httptest.NewRequest(http.MethodGet, "/api/user/status", nil))
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, httpx.Unauthorized.Code, decodeEnvelope(t, resp).Code)
}

func TestUserStatus_BadClaimedIdentity(t *testing.T) {
	env := newRouterEnv()

	for _, q := range []string{"tg_id=abc", "tg_id=-5", "tg_id=0"} {
		resp := env.doReq(t, httptest.NewRequest(http.MethodGet, "/api/user/status?"+q, nil))
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode, q)
		assert.Equal(t, httpx.BadRequest.Code, decodeEnvelope(t, resp).Code, q)
	}
}

// ip_strict guards anonymous status polls: exactly the limit goes
// through, the next poll gets 429 with Retry-After, and the window
// passing opens the gate again.
func TestRateLimit_AnonymousStatusBoundary(t *testing.T) {
	env := newRouterEnv()

	poll := func() *http.Response {
		req := httptest.NewRequest(http.MethodGet, "/api/user/status?tg_id=777", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		return env.doReq(t, req)
	}

	for i := 0; i < 3; i++ {
		resp := poll()
		require.Equal(t, fiber.StatusOK, resp.StatusCode, "poll %d", i+1)
	}

	resp := poll()
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, httpx.TooManyRequests.Code, decodeEnvelope(t, resp).Code)
	retry, err := strconv.Atoi(resp.Header.Get(fiber.HeaderRetryAfter))
	require.NoError(t, err)
	assert.Greater(t, retry, 0)
	assert.LessOrEqual(t, retry, 600)

	// a different address is not affected
	other := httptest.NewRequest(http.MethodGet, "/api/user/status?tg_id=777", nil)
	other.Header.Set("X-Forwarded-For", "203.0.113.10")
	require.Equal(t, fiber.StatusOK, env.doReq(t, other).StatusCode)

	env.clock.advance(10*time.Minute + time.Second)
	require.Equal(t, fiber.StatusOK, poll().StatusCode)
}

func TestVerifyIP_ChecksConnectionAddressOnly(t *testing.T) {
	env := newRouterEnv()

	// the body names a different address; the surface must ignore it
	req := postJSON("/api/verify/ip", `{"ip":"9.9.9.9"}`, freshInitData(1001))
	req.Header.Set("X-Forwarded-For", "198.51.100.7")

	resp := env.doReq(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var verdict model.VerifyIPResp
	detailInto(t, decodeEnvelope(t, resp), &verdict)
	assert.Equal(t, "198.51.100.7", verdict.IP)
	assert.False(t, verdict.IsBlockedCountry)

	pending := env.pendings.records[1001]
	require.NotNil(t, pending)
	assert.Equal(t, "198.51.100.7", pending.IPAddress)
	assert.True(t, env.audits.hasAction(model.AuditIPChecked))
}

func TestVerifySubmit_OutOfOrder(t *testing.T) {
	env := newRouterEnv()

	req := postJSON("/api/verify/submit", `{"name":"Ann","country":"Germany"}`, freshInitData(1001))
	resp := env.doReq(t, req)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, httpx.VerificationStepInvalid.Code, decodeEnvelope(t, resp).Code)
}

func TestVerifySubmit_AdvancesFunnel(t *testing.T) {
	env := newRouterEnv()
	env.pendings.records[1001] = &model.PendingVerification{
		Identity: 1001,
		Status:   statemachine.FunnelIPChecked,
	}

	req := postJSON("/api/verify/submit", `{"name":"Ann","country":"Germany","email":"ann@example.com"}`, freshInitData(1001))
	resp := env.doReq(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, httpx.Success.Code, decodeEnvelope(t, resp).Code)

	pending := env.pendings.records[1001]
	require.NotNil(t, pending)
	assert.Equal(t, statemachine.FunnelStep1Submitted, pending.Status)
	assert.Equal(t, "Ann", pending.Name)
}

func TestVerifyPhone_BlockedPrefix(t *testing.T) {
	env := newRouterEnv()
	env.pendings.records[1001] = &model.PendingVerification{
		Identity: 1001,
		Status:   statemachine.FunnelStep1Submitted,
	}

	req := postJSON("/api/verify/phone", `{"phone":"+915551234567"}`, freshInitData(1001))
	resp := env.doReq(t, req)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, httpx.PhoneBlocked.Code, decodeEnvelope(t, resp).Code)
	assert.Equal(t, statemachine.FunnelBlockedPhone, env.pendings.records[1001].Status)
}

func TestVerifyPhone_MalformedBody(t *testing.T) {
	env := newRouterEnv()

	req := postJSON("/api/verify/phone", `{"phone":`, freshInitData(1001))
	resp := env.doReq(t, req)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, httpx.RequestParameterParsingFailed.Code, decodeEnvelope(t, resp).Code)
}

func TestFallbackVerify_RejectsForeignOrigin(t *testing.T) {
	env := newRouterEnv()

	form := "tg_id=3003&name=Bo&country=Germany"
	req := httptest.NewRequest(http.MethodPost, "/api/fallback/verify", strings.NewReader(form))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	req.Header.Set(fiber.HeaderOrigin, "https://evil.example.com")

	resp := env.doReq(t, req)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, httpx.Forbidden.Code, decodeEnvelope(t, resp).Code)
	assert.Nil(t, env.pendings.records[3003], "a refused submission must write nothing")
}

func TestFallbackVerify_AllowedOriginFlagsForReview(t *testing.T) {
	env := newRouterEnv()

	form := "tg_id=3003&name=Bo&country=Germany&email=bo%40example.com"
	req := httptest.NewRequest(http.MethodPost, "/api/fallback/verify", strings.NewReader(form))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	req.Header.Set(fiber.HeaderOrigin, "https://gate.example.com")
	req.Header.Set("X-Forwarded-For", "198.51.100.20")

	resp := env.doReq(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, httpx.Success.Code, decodeEnvelope(t, resp).Code)

	pending := env.pendings.records[3003]
	require.NotNil(t, pending)
	assert.True(t, pending.RequiresManualReview)
	assert.Equal(t, "Bo", pending.Name)
}

func TestTrialInvite_GrantsSingleUseLink(t *testing.T) {
	env := newRouterEnv()
	env.pendings.records[1001] = &model.PendingVerification{
		Identity: 1001,
		Status:   statemachine.FunnelPhoneVerified,
	}

	resp := env.doReq(t, postJSON("/api/trial/invite", "", freshInitData(1001)))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var invite model.InviteResp
	detailInto(t, decodeEnvelope(t, resp), &invite)
	assert.Equal(t, "https://t.me/+fake1", invite.InviteLink)
	assert.False(t, invite.AlreadyHasLink)

	used := env.trials.used[1001]
	require.NotNil(t, used, "the one-shot reservation must exist")
	assert.False(t, used.Consumed())
	assert.True(t, env.audits.hasAction(model.AuditInviteIssued))
	assert.True(t, env.audits.hasAction(model.AuditTrialGranted))
}

func TestTrialInvite_RepeatAskReturnsExistingLink(t *testing.T) {
	env := newRouterEnv()
	env.pendings.records[1001] = &model.PendingVerification{
		Identity: 1001,
		Status:   statemachine.FunnelPhoneVerified,
	}

	first := env.doReq(t, postJSON("/api/trial/invite", "", freshInitData(1001)))
	require.Equal(t, fiber.StatusOK, first.StatusCode)
	var initial model.InviteResp
	detailInto(t, decodeEnvelope(t, first), &initial)

	second := env.doReq(t, postJSON("/api/trial/invite", "", freshInitData(1001)))
	require.Equal(t, fiber.StatusOK, second.StatusCode)
	var repeat model.InviteResp
	detailInto(t, decodeEnvelope(t, second), &repeat)

	assert.True(t, repeat.AlreadyHasLink)
	assert.Equal(t, initial.InviteLink, repeat.InviteLink)
	assert.Equal(t, 1, env.bot.links, "only one link may be created")
}

func TestTrialInvite_PhoneStepRequired(t *testing.T) {
	env := newRouterEnv()

	resp := env.doReq(t, postJSON("/api/trial/invite", "", freshInitData(1001)))
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, httpx.VerificationStepInvalid.Code, decodeEnvelope(t, resp).Code)
}

func TestTrialInfo_NoActiveTrial(t *testing.T) {
	env := newRouterEnv()

	resp := env.doReq(t, getWithInitData("/api/trial/info", freshInitData(1001)))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var info model.TrialInfoResp
	detailInto(t, decodeEnvelope(t, resp), &info)
	assert.False(t, info.HasActiveTrial)
	assert.False(t, info.TrialEnded)
}

func TestTrialInfo_RunningTrial(t *testing.T) {
	env := newRouterEnv()
	join := env.clock.Now().Add(-24 * time.Hour)
	env.trials.active[1001] = &model.ActiveTrial{
		Identity:   1001,
		JoinTime:   join,
		TotalHours: 72,
		TrialEndAt: join.Add(72 * time.Hour),
	}

	resp := env.doReq(t, getWithInitData("/api/trial/info", freshInitData(1001)))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var info model.TrialInfoResp
	detailInto(t, decodeEnvelope(t, resp), &info)
	assert.True(t, info.HasActiveTrial)
	assert.Equal(t, 72, info.TotalHours)
	assert.InDelta(t, 48.0, info.RemainingHours, 0.01)
}
