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

//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"

	"github.com/go-gatehouse/gatehouse/internal/bootstrap"
	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/repo"
	"github.com/go-gatehouse/gatehouse/internal/gate/router"
	"github.com/go-gatehouse/gatehouse/internal/gate/sched"
	"github.com/go-gatehouse/gatehouse/internal/gate/service"
	"github.com/go-gatehouse/gatehouse/internal/pkg/queue"
	"github.com/go-gatehouse/gatehouse/internal/pkg/reputation"
	"github.com/go-gatehouse/gatehouse/internal/pkg/telegram"
	"github.com/go-gatehouse/gatehouse/pkg/cache"
	"github.com/go-gatehouse/gatehouse/pkg/cron"
	"github.com/go-gatehouse/gatehouse/pkg/database"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
	"github.com/go-gatehouse/gatehouse/pkg/pprof"
	"github.com/go-gatehouse/gatehouse/pkg/ratelimit"
)

func initApp(configPath string, db database.IDatabase, redisClient *redis.Client, redisCache cache.ICache) (*bootstrap.App, func(), error) {
	panic(wire.Build(
		config.ProviderSet,
		cache.ProviderSet,
		repo.ProviderSet,
		queue.ProviderSet,
		telegram.ProviderSet,
		reputation.ProviderSet,
		sched.ProviderSet,
		service.ProviderSet,
		ratelimit.ProviderSet,
		metrics.ProviderSet,
		pprof.ProviderSet,
		router.ProviderSet,
		provideCron,
		bootstrap.NewApp,
	))
}

// provideCron builds the shared cron. The redis tick lock keeps the
// sweep single-flight across replicas.
func provideCron(client redis.UniversalClient) *cron.Cron {
	return cron.New(cron.WithRedisClient(client))
}
