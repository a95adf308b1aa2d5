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

package cache

import (
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

// defaultLocalMaxBytes is the default local cache size (32MB)
const defaultLocalMaxBytes = 32 * 1024 * 1024

// ProviderSet provides the cache layers built on top of the redis client
// that bootstrap injects (local FastCache + hybrid local/remote cache).
var ProviderSet = wire.NewSet(
	ProvideUniversalClient,
	ProvideFastCache,
	ProvideHybridCache,
)

// ProvideUniversalClient adapts the injected client for consumers that
// accept the universal interface (task queue, rate limiter).
func ProvideUniversalClient(client *redis.Client) redis.UniversalClient {
	return client
}

// ProvideFastCache provides the in-process cache (default 32MB)
func ProvideFastCache() *FastCache {
	return NewFastCache(FastCacheConfig{MaxBytes: defaultLocalMaxBytes})
}

// ProvideHybridCache provides the layered cache (local FastCache + remote Redis)
func ProvideHybridCache(local *FastCache, remote ICache) *HybridCache {
	return NewHybridCache(local, remote, HybridCacheConfig{
		LocalEnabled:  true,
		RemoteEnabled: true,
		LocalMaxBytes: defaultLocalMaxBytes,
		LocalTTLRatio: 0.8,
	})
}
