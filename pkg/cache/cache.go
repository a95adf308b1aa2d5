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
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ICache abstracts the cache operations used across the service.
type ICache interface {
	// Get returns the value for key.
	Get(ctx context.Context, key string) *redis.StringCmd
	// Set stores value under key with an expiration.
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	// Del removes keys.
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	// Pipeline opens a command pipeline.
	Pipeline() redis.Pipeliner
	// HSet sets hash fields.
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	// HGetAll returns all hash fields.
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	// HDel removes hash fields.
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	// Expire sets a key's time to live.
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}
