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
	"fmt"
	"time"
)

// ActiveTrial is the single live trial a user may hold. Its signature binds
// identity, join time, duration and deadline together; a row whose signature
// does not verify is treated as absent everywhere and removed by the sweeper.
type ActiveTrial struct {
	Identity   int64     `gorm:"column:identity;primaryKey" json:"identity"`
	JoinTime   time.Time `gorm:"column:join_time" json:"joinTime"`
	TotalHours int       `gorm:"column:total_hours" json:"totalHours"`
	TrialEndAt time.Time `gorm:"column:trial_end_at" json:"trialEndAt"`
	Signature  string    `gorm:"column:signature" json:"-"`
	BaseModel
}

func (a *ActiveTrial) TableName() string {
	return "t_active_trial"
}

// Canonical returns the string the signature covers. Unix truncation keeps
// the value stable across the nanosecond precision of a fresh time.Time and
// the second precision read back from the database.
func (a *ActiveTrial) Canonical() string {
	return fmt.Sprintf("%d|%d|%d|%d", a.Identity, a.JoinTime.Unix(), a.TotalHours, a.TrialEndAt.Unix())
}

// Seal computes and stores the row signature.
func (a *ActiveTrial) Seal(s *Sealer) {
	a.Signature = s.Sign(a.Canonical())
}

// Verify reports whether the stored signature matches the row fields.
func (a *ActiveTrial) Verify(s *Sealer) bool {
	return s.Verify(a.Canonical(), a.Signature)
}

// Remaining reports the time left until the trial deadline, never negative.
func (a *ActiveTrial) Remaining(now time.Time) time.Duration {
	if d := a.TrialEndAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Expired reports whether the deadline has passed.
func (a *ActiveTrial) Expired(now time.Time) bool {
	return !now.Before(a.TrialEndAt)
}

// TrialCounts summarizes the trial tables for the ops endpoint.
type TrialCounts struct {
	Active   int64 `json:"active"`
	Reserved int64 `json:"reserved"`
	Used     int64 `json:"used"`
}

// TrialInfoResp is the remaining-time summary the mini app polls while a
// trial runs. Timestamps are unix seconds.
type TrialInfoResp struct {
	HasActiveTrial bool    `json:"has_active_trial"`
	TrialEnded     bool    `json:"trial_ended"`
	JoinTime       int64   `json:"join_time,omitempty"`
	TrialEndAt     int64   `json:"trial_end_at,omitempty"`
	TotalHours     int     `json:"total_hours,omitempty"`
	ElapsedHours   float64 `json:"elapsed_hours,omitempty"`
	RemainingHours float64 `json:"remaining_hours,omitempty"`
}
