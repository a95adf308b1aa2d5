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

package service

import (
	"context"

	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
)

// HandoffService serves verification records to the trusted internal
// consumer that provisions accounts downstream. Records exist only
// until the grant; a granted identity reads as not found here.
type HandoffService struct {
	pendingRepo repo.IPendingRepository
}

func NewHandoffService(pendingRepo repo.IPendingRepository) *HandoffService {
	return &HandoffService{pendingRepo: pendingRepo}
}

// Verification returns the pending record for an identity, nil when
// none exists.
func (hs *HandoffService) Verification(ctx context.Context, identity int64) (*model.PendingVerification, error) {
	return hs.pendingRepo.GetPending(ctx, identity)
}
