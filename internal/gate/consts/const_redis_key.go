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

package consts

// Redis key prefixes. Every key this service writes outside the rate
// limiter and the task queue starts with one of these.
const (
	// RedisKeyInvite holds the per-identity invite placeholder,
	// RedisKeyInvite + identity hash.
	RedisKeyInvite = "gate:invite:"

	// RedisKeyReputation caches IP reputation verdicts,
	// RedisKeyReputation + ip.
	RedisKeyReputation = "gate:reputation:"

	// RedisKeyUpdateOffset stores the last consumed bot update ID so
	// polling resumes where it stopped.
	RedisKeyUpdateOffset = "gate:tg:offset"

	// RedisKeyFunnelCounts caches the per-status funnel totals behind
	// the admin overview.
	RedisKeyFunnelCounts = "gate:funnel:counts"
)
