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

const (
	// UsedTrialStatusReserved marks a claim placeholder written inside the
	// grant transaction before the invite link exists.
	UsedTrialStatusReserved = "reserved"
	// UsedTrialStatusUsed marks a consumed trial; the row now enforces the
	// one trial per identity rule and anchors the cooldown window.
	UsedTrialStatusUsed = "used"
)

// Trial end reasons recorded on the used row.
const (
	EndReasonExpired = "expired"
	EndReasonLeft    = "left_channel"
	EndReasonOverdue = "overdue_sweep"
	EndReasonAdmin   = "admin_terminate"
)

// UsedTrial records that an identity consumed its trial, or holds its claim
// while the invite is being prepared.
type UsedTrial struct {
	Identity   int64      `gorm:"column:identity;primaryKey" json:"identity"`
	Status     string     `gorm:"column:status" json:"status"`
	Reason     string     `gorm:"column:reason" json:"reason"`
	EndedAt    *time.Time `gorm:"column:ended_at" json:"endedAt,omitempty"`
	ReservedAt *time.Time `gorm:"column:reserved_at" json:"reservedAt,omitempty"`
	BaseModel
}

func (u *UsedTrial) TableName() string {
	return "t_used_trial"
}

// Consumed reports whether the trial was actually used, as opposed to a
// claim placeholder that never activated.
func (u *UsedTrial) Consumed() bool {
	return u.Status == UsedTrialStatusUsed
}

// CooldownUntil returns the moment the identity becomes eligible again. A
// used row with no end time cannot anchor a window, so eligibility is
// pushed out indefinitely rather than granted by accident.
func (u *UsedTrial) CooldownUntil(days int) time.Time {
	if u.EndedAt == nil {
		return maxTime
	}
	return u.EndedAt.Add(time.Duration(days) * 24 * time.Hour)
}

var maxTime = time.Unix(1<<62, 0)
