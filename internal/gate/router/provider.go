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

package router

import (
	"github.com/google/wire"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/service"
	"github.com/go-gatehouse/gatehouse/internal/pkg/telegram"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
	"github.com/go-gatehouse/gatehouse/pkg/ratelimit"
)

// ProviderSet provides the HTTP surface.
var ProviderSet = wire.NewSet(ProvideInitDataValidator, ProvideRouter)

// ProvideInitDataValidator binds init-data validation to the configured
// bot token.
func ProvideInitDataValidator(appConf *config.AppConfig) *telegram.InitDataValidator {
	return telegram.NewInitDataValidator(appConf.Telegram.BotToken)
}

// ProvideRouter assembles the router from its dependencies.
func ProvideRouter(
	appConf *config.AppConfig,
	services *service.Services,
	limiter ratelimit.Limiter,
	validator *telegram.InitDataValidator,
	metricsServer *metrics.Server,
) *Router {
	return NewRouter(&appConf.Http, services, limiter, validator, metricsServer)
}
