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
	"github.com/go-gatehouse/gatehouse/internal/pkg/queue"
	"github.com/go-gatehouse/gatehouse/pkg/log"
)

// AdminService backs the authenticated operator surface: forced
// termination, the audit trail, and the store/queue overview.
type AdminService struct {
	trial       *TrialService
	trialRepo   repo.ITrialRepository
	pendingRepo repo.IPendingRepository
	auditRepo   repo.IAuditRepository
	taskQueue   *queue.TaskQueue
}

func NewAdminService(
	trial *TrialService,
	repos *repo.Repositories,
	taskQueue *queue.TaskQueue,
) *AdminService {
	return &AdminService{
		trial:       trial,
		trialRepo:   repos.Trial,
		pendingRepo: repos.Pending,
		auditRepo:   repos.Audit,
		taskQueue:   taskQueue,
	}
}

// TerminateTrial force-ends a running trial on operator request.
func (as *AdminService) TerminateTrial(ctx context.Context, identity int64, operator string) (*model.ActiveTrial, error) {
	trial, err := as.trial.Terminate(ctx, identity, model.EndReasonAdmin, "admin")
	if err != nil {
		return nil, err
	}
	if trial == nil {
		return nil, ErrNoActiveTrial
	}
	appendAudit(ctx, as.auditRepo, &model.AuditEvent{
		Identity: identity,
		Action:   model.AuditAdminTerminate,
		Detail:   "terminated by " + operator,
	})
	return trial, nil
}

// AuditEvents lists the audit trail, newest first.
func (as *AdminService) AuditEvents(ctx context.Context, req *model.AuditQueryReq) ([]model.AuditEvent, error) {
	return as.auditRepo.List(ctx, req)
}

// OverviewResp is the operator snapshot of the store and the queue.
type OverviewResp struct {
	Trials model.TrialCounts           `json:"trials"`
	Funnel map[string]int64            `json:"funnel"`
	Queues map[string]queue.QueueStats `json:"queues,omitempty"`
}

// Overview reports trial counts, the funnel breakdown and queue depths.
func (as *AdminService) Overview(ctx context.Context) (*OverviewResp, error) {
	counts, err := as.trialRepo.Counts(ctx)
	if err != nil {
		return nil, err
	}
	funnel, err := as.pendingRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	resp := &OverviewResp{Trials: counts, Funnel: funnel}
	if as.taskQueue != nil {
		stats, qerr := as.taskQueue.Stats(ctx)
		if qerr != nil {
			log.Warnw("failed to read queue stats", "error", qerr)
		} else {
			resp.Queues = stats
		}
	}
	return resp, nil
}
