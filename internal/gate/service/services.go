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
	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
	"github.com/go-gatehouse/gatehouse/internal/pkg/queue"
)

// Services bundles every gate service behind one handle.
type Services struct {
	Funnel   *FunnelService
	Trial    *TrialService
	Event    *EventService
	Handoff  *HandoffService
	Admin    *AdminService
	Notifier *Notifier
}

// NewServices wires the services together. The scheduler arrives as an
// interface because its implementation also depends on the trial
// service; the caller binds the two after construction.
func NewServices(
	appConf *config.AppConfig,
	repos *repo.Repositories,
	tg BotClient,
	rep ReputationChecker,
	scheduler TrialScheduler,
	taskQueue *queue.TaskQueue,
	clock Clock,
) *Services {
	if clock == nil {
		clock = NewSystemClock()
	}

	notifier := NewNotifier(tg, &appConf.Trial)
	policy := NewWeekendPolicy(&appConf.Trial)

	trial := NewTrialService(repos, tg, notifier, scheduler, policy, clock,
		&appConf.Trial, appConf.Telegram.ChannelID)
	funnel := NewFunnelService(repos, rep, trial, tg, clock, appConf)
	event := NewEventService(funnel, trial, repos.Trial, notifier, tg, clock,
		&appConf.Trial, appConf.Telegram.ChannelID)
	handoff := NewHandoffService(repos.Pending)
	admin := NewAdminService(trial, repos, taskQueue)

	return &Services{
		Funnel:   funnel,
		Trial:    trial,
		Event:    event,
		Handoff:  handoff,
		Admin:    admin,
		Notifier: notifier,
	}
}
