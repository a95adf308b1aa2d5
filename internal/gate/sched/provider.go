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

package sched

import (
	"github.com/google/wire"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
	"github.com/go-gatehouse/gatehouse/internal/gate/service"
	"github.com/go-gatehouse/gatehouse/internal/pkg/queue"
)

// ProviderSet provides the trial scheduler, also bound as the
// service.TrialScheduler the grant path queues through.
var ProviderSet = wire.NewSet(
	ProvideScheduler,
	wire.Bind(new(service.TrialScheduler), new(*Scheduler)),
)

// ProvideScheduler builds the scheduler on the real task queue. Bind
// must still be called once the services exist.
func ProvideScheduler(
	taskQueue *queue.TaskQueue,
	repos *repo.Repositories,
	sealer *model.Sealer,
	appConf *config.AppConfig,
	clock service.Clock,
) *Scheduler {
	return NewScheduler(taskQueue, repos, sealer, &appConf.Trial, clock)
}
