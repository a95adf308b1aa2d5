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

package config

import (
	"github.com/google/wire"

	"github.com/go-gatehouse/gatehouse/pkg/cache"
	"github.com/go-gatehouse/gatehouse/pkg/database"
	"github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
	"github.com/go-gatehouse/gatehouse/pkg/pprof"
	"github.com/go-gatehouse/gatehouse/pkg/ratelimit"
)

// ProviderSet provides the configuration layer.
var ProviderSet = wire.NewSet(
	ProvideConf,
	ProvideHttpConfig,
	ProvideLogConfig,
	ProvideDatabaseConfig,
	ProvideRedisConfig,
	ProvideMetricsConfig,
	ProvidePprofConfig,
	ProvideRateLimitConfig,
)

// ProvideConf provides the application configuration.
func ProvideConf(configPath string) *AppConfig {
	return NewConf(configPath)
}

// ProvideHttpConfig provides the HTTP server configuration.
func ProvideHttpConfig(appConf *AppConfig) *http.Http {
	return &appConf.Http
}

// ProvideLogConfig provides the logging configuration.
func ProvideLogConfig(appConf *AppConfig) *log.Conf {
	return &appConf.Log
}

// ProvideDatabaseConfig provides the database configuration.
func ProvideDatabaseConfig(appConf *AppConfig) database.Database {
	return appConf.Database
}

// ProvideRedisConfig provides the Redis configuration.
func ProvideRedisConfig(appConf *AppConfig) cache.Redis {
	return appConf.Redis
}

// ProvideMetricsConfig provides the metrics server configuration.
func ProvideMetricsConfig(appConf *AppConfig) metrics.MetricsConfig {
	return appConf.Metrics
}

// ProvidePprofConfig provides the pprof configuration.
func ProvidePprofConfig(appConf *AppConfig) pprof.PprofConfig {
	pprofConfig := appConf.Pprof
	pprofConfig.SetDefaults()
	return pprofConfig
}

// ProvideRateLimitConfig provides the rate limiter configuration.
func ProvideRateLimitConfig(appConf *AppConfig) ratelimit.Conf {
	return appConf.RateLimit
}
