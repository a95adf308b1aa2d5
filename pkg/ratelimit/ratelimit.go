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
	"context"
	"time"
)

// Rule caps the number of events per key inside a sliding window.
type Rule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Conf holds the limiter store selection and the named rules.
type Conf struct {
	Store string          `mapstructure:"store"`
	Rules map[string]Rule `mapstructure:"rules"`
}

// SetDefaults fills the store and the standard rule set. Rules present in
// the config override the defaults rule by rule.
func (c *Conf) SetDefaults() {
	if c.Store == "" {
		c.Store = "memory"
	}
	defaults := map[string]Rule{
		"ip":            {Limit: 5, Window: 60 * time.Minute},
		"ip_strict":     {Limit: 3, Window: 10 * time.Minute},
		"identity":      {Limit: 10, Window: 60 * time.Minute},
		"fallback":      {Limit: 3, Window: 30 * time.Minute},
		"handoff":       {Limit: 10, Window: 60 * time.Minute},
		"funnel_action": {Limit: 5, Window: 15 * time.Minute},
	}
	if c.Rules == nil {
		c.Rules = make(map[string]Rule, len(defaults))
	}
	for name, rule := range defaults {
		if _, ok := c.Rules[name]; !ok {
			c.Rules[name] = rule
		}
	}
}

// Result reports the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter answers whether an event identified by (rule, key) may proceed
// right now. Implementations must be safe for concurrent use.
type Limiter interface {
	Allow(ctx context.Context, rule, key string) (Result, error)
}

var allowAll = Result{Allowed: true}
