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

package model

import (
	"gorm.io/datatypes"

	"github.com/go-gatehouse/gatehouse/pkg/statemachine"
)

// PendingVerification tracks one user's progress through the access funnel.
// A row exists from the first IP check until a trial is activated or the
// record goes stale and the sweeper removes it.
type PendingVerification struct {
	Identity             int64                     `gorm:"column:identity;primaryKey" json:"identity"`
	Status               statemachine.FunnelStatus `gorm:"column:status" json:"status"`
	Name                 string                    `gorm:"column:name" json:"name"`
	Country              string                    `gorm:"column:country" json:"country"`
	Email                string                    `gorm:"column:email" json:"email"`
	Phone                string                    `gorm:"column:phone" json:"phone"` // masked, prefix plus ****
	IPAddress            string                    `gorm:"column:ip_address" json:"ipAddress"`
	IPCountry            string                    `gorm:"column:ip_country" json:"ipCountry"`
	IsVPN                bool                      `gorm:"column:is_vpn" json:"isVpn"`
	APIFailed            bool                      `gorm:"column:api_failed" json:"apiFailed"`
	RequiresManualReview bool                      `gorm:"column:requires_manual_review" json:"requiresManualReview"`
	BypassCheck          bool                      `gorm:"column:bypass_check" json:"bypassCheck"`
	Verdict              datatypes.JSON            `gorm:"column:verdict" json:"verdict"`
	BaseModel
}

func (p *PendingVerification) TableName() string {
	return "t_pending_verification"
}

// VerifyIPReq request for the funnel IP check
type VerifyIPReq struct {
	// IP overrides the connection address; only honored on the internal surface.
	IP string `json:"ip,omitempty"`
}

// VerifyIPResp response for the funnel IP check
type VerifyIPResp struct {
	IP               string `json:"ip"`
	IsVPN            bool   `json:"is_vpn"`
	IsBlockedCountry bool   `json:"is_blocked_country"`
	CountryCode      string `json:"country_code"`
	Bypassed         bool   `json:"bypassed"`
}

// SubmitStep1Req request for the identity form step. IPCheckBypassed is
// echoed back by the client when the IP check failed open; it can only add
// scrutiny, never remove it.
type SubmitStep1Req struct {
	Name            string `json:"name"`
	Country         string `json:"country"`
	Email           string `json:"email,omitempty"`
	IPCheckBypassed bool   `json:"ip_check_bypassed,omitempty"`
}

// VerifyPhoneReq request for the phone verification step
type VerifyPhoneReq struct {
	Phone string `json:"phone"`
}

// FallbackVerifyReq request for the reduced non-WebApp form. The identity
// arrives in the body because this surface has no init data to prove it.
// Form tags cover the urlencoded posts the no-script page sends.
type FallbackVerifyReq struct {
	Identity string `json:"tg_id" form:"tg_id"`
	Name     string `json:"name" form:"name"`
	Country  string `json:"country" form:"country"`
	Email    string `json:"email,omitempty" form:"email"`
}

// StatusResp aggregate view of a user's funnel and trial state
type StatusResp struct {
	Identity       int64                     `json:"tg_id"`
	Status         statemachine.FunnelStatus `json:"status"`
	HasUsedTrial   bool                      `json:"has_used_trial"`
	HasActiveTrial bool                      `json:"has_active_trial"`
	HasInviteLink  bool                      `json:"has_invite_link"`
	CanStartTrial  bool                      `json:"can_start_trial"`
	ElapsedHours   float64                   `json:"elapsed_hours"`
	RemainingHours float64                   `json:"remaining_hours"`
	TrialHours     int                       `json:"trial_hours"`
	InviteLink     string                    `json:"invite_link,omitempty"`
	CooldownDays   int                       `json:"cooldown_days,omitempty"`
}
