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
	"time"

	"github.com/go-gatehouse/gatehouse/pkg/database"
)

// BaseModel carries the bookkeeping timestamps shared by the funnel and
// trial tables. The tables key on the Telegram identity instead of a
// surrogate id, so there is no auto increment column here.
type BaseModel struct {
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Register makes every table known to the database layer so bootstrap can
// run a single AutoMigrate pass over them.
func Register() {
	database.RegisterModels(
		&PendingVerification{},
		&ActiveTrial{},
		&UsedTrial{},
		&InviteRecord{},
		&AuditEvent{},
	)
}
