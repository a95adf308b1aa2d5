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

package ratelimit

import (
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

// ProviderSet provides the limiter selected by Conf.Store
var ProviderSet = wire.NewSet(ProvideLimiter)

// ProvideLimiter builds the configured limiter. The redis store shares
// windows across replicas, the memory store is per process.
func ProvideLimiter(conf Conf, client redis.UniversalClient) Limiter {
	switch conf.Store {
	case "redis":
		return NewRedisLimiter(client, conf.Rules)
	default:
		return NewMemoryLimiter(conf.Rules)
	}
}
