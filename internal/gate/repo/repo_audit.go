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

package repo

import (
	"context"

	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/pkg/database"
	"github.com/go-gatehouse/gatehouse/pkg/id"
)

const auditDefaultLimit = 100

type IAuditRepository interface {
	Append(ctx context.Context, event *model.AuditEvent) error
	List(ctx context.Context, req *model.AuditQueryReq) ([]model.AuditEvent, error)
}

type AuditRepo struct {
	database.IDatabase
}

func NewAuditRepo(db database.IDatabase) IAuditRepository {
	return &AuditRepo{IDatabase: db}
}

// Append writes one audit row. The log is append-only; nothing updates or
// deletes here.
func (ar *AuditRepo) Append(ctx context.Context, event *model.AuditEvent) error {
	if event.ID == "" {
		event.ID = id.GetULID()
	}
	return ar.Database().WithContext(ctx).Table(event.TableName()).Create(event).Error
}

// List returns recent events, newest first. ULIDs sort by creation time,
// so ordering by id is ordering by time. The query pins to replicas,
// nothing downstream acts on the result.
func (ar *AuditRepo) List(ctx context.Context, req *model.AuditQueryReq) ([]model.AuditEvent, error) {
	limit := req.Limit
	if limit <= 0 || limit > 1000 {
		limit = auditDefaultLimit
	}
	q := database.ReadDB(ar.Database().WithContext(ctx)).Table((&model.AuditEvent{}).TableName())
	if req.Identity != 0 {
		q = q.Where("identity = ?", req.Identity)
	}
	if req.Action != "" {
		q = q.Where("action = ?", req.Action)
	}
	var events []model.AuditEvent
	if err := q.Order("id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
