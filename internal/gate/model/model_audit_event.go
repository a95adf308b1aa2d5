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

import "time"

// Audit actions. Every security relevant decision writes one of these.
const (
	AuditIPChecked         = "ip_checked"
	AuditBlockedRegion     = "blocked_region"
	AuditBlockedPhone      = "blocked_phone"
	AuditStep1Submitted    = "step1_submitted"
	AuditPhoneVerified     = "phone_verified"
	AuditFallbackVerified  = "fallback_verified"
	AuditOriginRejected    = "origin_rejected"
	AuditRateLimited       = "rate_limited"
	AuditTrialGranted      = "trial_granted"
	AuditTrialActivated    = "trial_activated"
	AuditTrialTerminated   = "trial_terminated"
	AuditCooldownRejected  = "cooldown_rejected"
	AuditInviteIssued      = "invite_issued"
	AuditInviteFailed      = "invite_failed"
	AuditSignatureMismatch = "signature_mismatch"
	AuditIntegrityFailure  = "integrity_failure"
	AuditManualReview      = "manual_review_flagged"
	AuditAdminTerminate    = "admin_terminate"
	AuditSweepCleanup      = "sweep_cleanup"
	AuditClockAnomaly      = "clock_anomaly"
)

// AuditEvent is an append-only record of a gate decision. Identity is zero
// when the event is not tied to a user, for example an origin rejection
// before the identity is known.
type AuditEvent struct {
	ID        string    `gorm:"column:id;primaryKey;type:char(26)" json:"id"`
	Identity  int64     `gorm:"column:identity;index" json:"identity"`
	Action    string    `gorm:"column:action;index" json:"action"`
	Detail    string    `gorm:"column:detail" json:"detail"`
	IP        string    `gorm:"column:ip" json:"ip"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (e *AuditEvent) TableName() string {
	return "t_audit_event"
}

// AuditQueryReq request for listing audit events on the internal surface
type AuditQueryReq struct {
	Identity int64  `query:"identity"`
	Action   string `query:"action"`
	Limit    int    `query:"limit"`
}
