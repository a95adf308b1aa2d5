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

// Package repo implements the transactional record store. Reservation,
// invite idempotency, activation and termination each run as a single
// gorm transaction with row locks, and signed records are verified on
// every read that feeds a trust decision.
package repo

import (
	"errors"

	"gorm.io/gorm"

	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/pkg/cache"
	"github.com/go-gatehouse/gatehouse/pkg/database"
)

// Repositories bundles the record store repositories.
type Repositories struct {
	Pending IPendingRepository
	Trial   ITrialRepository
	Invite  IInviteRepository
	Audit   IAuditRepository
}

func NewRepositories(db database.IDatabase, cache cache.ICache, sealer *model.Sealer) *Repositories {
	audit := NewAuditRepo(db)
	return &Repositories{
		Pending: NewPendingRepo(db, cache),
		Trial:   NewTrialRepo(db, sealer, audit),
		Invite:  NewInviteRepo(db, sealer, audit),
		Audit:   audit,
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
