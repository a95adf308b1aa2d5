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

const (
	// InviteStatusCreating marks a placeholder row claimed before the
	// external link request goes out. A creating row older than
	// InviteCreatingStaleAfter is abandoned and may be taken over.
	InviteStatusCreating = "creating"
	// InviteStatusReady marks a finalized row holding a usable link.
	InviteStatusReady = "ready"
)

// InviteCreatingStaleAfter bounds how long a creating placeholder can block
// other attempts for the same identity.
const InviteCreatingStaleAfter = 5 * time.Minute

// InviteRecord is the single-use channel invite issued to an identity. The
// signature covers the reference so a tampered link cannot be replayed;
// rows that fail verification are treated as absent.
type InviteRecord struct {
	Identity  int64     `gorm:"column:identity;primaryKey" json:"identity"`
	Status    string    `gorm:"column:status" json:"status"`
	Reference string    `gorm:"column:reference" json:"reference"`
	ExpiresAt time.Time `gorm:"column:expires_at" json:"expiresAt"`
	Signature string    `gorm:"column:signature" json:"-"`
	BaseModel
}

func (i *InviteRecord) TableName() string {
	return "t_invite"
}

// Canonical returns the string the signature covers.
func (i *InviteRecord) Canonical() string {
	return fmt.Sprintf("%d|%s|%d|%d", i.Identity, i.Reference, i.CreatedAt.Unix(), i.ExpiresAt.Unix())
}

// Seal computes and stores the row signature.
func (i *InviteRecord) Seal(s *Sealer) {
	i.Signature = s.Sign(i.Canonical())
}

// Verify reports whether the stored signature matches the row fields.
func (i *InviteRecord) Verify(s *Sealer) bool {
	return s.Verify(i.Canonical(), i.Signature)
}

// Usable reports whether the row holds a link a user could still follow.
func (i *InviteRecord) Usable(now time.Time) bool {
	return i.Status == InviteStatusReady && now.Before(i.ExpiresAt)
}

// Stale reports whether a creating placeholder has been abandoned.
func (i *InviteRecord) Stale(now time.Time) bool {
	return i.Status == InviteStatusCreating && now.Sub(i.CreatedAt) > InviteCreatingStaleAfter
}

// InviteResp response for the invite issue operation
type InviteResp struct {
	InviteLink     string `json:"invite_link"`
	AlreadyHasLink bool   `json:"already_has_link"`
	// InProgress marks a concurrent creation already under way; the
	// client retries shortly instead of treating it as a failure.
	InProgress bool  `json:"in_progress,omitempty"`
	ExpiresAt  int64 `json:"expires_at,omitempty"`
}
