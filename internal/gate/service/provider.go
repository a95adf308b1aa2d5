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
	"fmt"
	"time"

	"github.com/google/wire"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
	"github.com/go-gatehouse/gatehouse/internal/pkg/queue"
	"github.com/go-gatehouse/gatehouse/internal/pkg/reputation"
	"github.com/go-gatehouse/gatehouse/internal/pkg/telegram"
	"github.com/go-gatehouse/gatehouse/pkg/log"
)

// ProviderSet provides the service layer.
var ProviderSet = wire.NewSet(
	ProvideClock,
	ProvideServices,
)

// clockAuditTimeout bounds the audit write fired from the clock hook.
const clockAuditTimeout = 5 * time.Second

// ProvideClock returns the guarded wall clock. Backwards jumps are
// clamped and land in the audit trail.
func ProvideClock(repos *repo.Repositories) Clock {
	return NewGuardedClock(NewSystemClock(), func(prev, reported time.Time) {
		ctx, cancel := context.WithTimeout(context.Background(), clockAuditTimeout)
		defer cancel()
		if err := repos.Audit.Append(ctx, &model.AuditEvent{
			Action: model.AuditClockAnomaly,
			Detail: fmt.Sprintf("clock regressed from %s to %s",
				prev.UTC().Format(time.RFC3339Nano), reported.UTC().Format(time.RFC3339Nano)),
		}); err != nil {
			log.Warnw("failed to record clock anomaly", "error", err)
		}
	})
}

// ProvideServices builds the service bundle on the concrete clients.
func ProvideServices(
	appConf *config.AppConfig,
	repos *repo.Repositories,
	tgClient *telegram.Client,
	repClient *reputation.Client,
	scheduler TrialScheduler,
	taskQueue *queue.TaskQueue,
	clock Clock,
) *Services {
	return NewServices(appConf, repos, tgClient, repClient, scheduler, taskQueue, clock)
}
