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
	"fmt"
	"strings"
	"sync"

	"github.com/go-gatehouse/gatehouse/pkg/cache"
	"github.com/go-gatehouse/gatehouse/pkg/conf"
	"github.com/go-gatehouse/gatehouse/pkg/database"
	"github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
	"github.com/go-gatehouse/gatehouse/pkg/pprof"
	"github.com/go-gatehouse/gatehouse/pkg/ratelimit"
	"github.com/go-gatehouse/gatehouse/pkg/trace"
)

// minSigningSecretLen is the minimum byte length of the record signing
// secret. Anything shorter refuses to start.
const minSigningSecretLen = 32

// TelegramConf configures the bot API client and the update poller.
type TelegramConf struct {
	// BotToken authenticates every bot API call and anchors the
	// init-data validation chain.
	BotToken string `mapstructure:"botToken"`
	// ChannelID is the restricted channel the trials gate, a negative
	// supergroup/channel id.
	ChannelID int64 `mapstructure:"channelId"`
	// APIBaseURL overrides the bot API host, used by tests.
	APIBaseURL string `mapstructure:"apiBaseUrl"`
	// RequestTimeout bounds one API call, seconds.
	RequestTimeout int `mapstructure:"requestTimeout"`
	// PollTimeout is the getUpdates long-poll hold, seconds.
	PollTimeout int `mapstructure:"pollTimeout"`
}

// ReputationConf configures the IP reputation lookup.
type ReputationConf struct {
	Endpoint string `mapstructure:"endpoint"`
	// Keys are the provider API keys; the key for an address is picked
	// by hashing the address across them, so repeated lookups of the
	// same address burn quota on the same key.
	Keys    []string `mapstructure:"keys"`
	Timeout int      `mapstructure:"timeout"` // seconds
	// CacheTTL bounds how long a verdict is reused, seconds.
	CacheTTL int `mapstructure:"cacheTtl"`
	// BlockedCountries are ISO country codes rejected at the IP step.
	BlockedCountries []string `mapstructure:"blockedCountries"`
}

// TrialConf configures the trial lifecycle policy.
type TrialConf struct {
	// SigningSecret keys the HMAC over trial and invite records.
	SigningSecret string `mapstructure:"signingSecret"`
	// BaseHours is the weekday trial length, WeekendHours the length
	// for joins that land on Sat/Sun in the configured local offset.
	BaseHours           int     `mapstructure:"baseHours"`
	WeekendHours        int     `mapstructure:"weekendHours"`
	TimezoneOffsetHours float64 `mapstructure:"timezoneOffsetHours"`
	// BaseReminderOffsets / WeekendReminderOffsets are hours after the
	// join at which reminders fire.
	BaseReminderOffsets    []int `mapstructure:"baseReminderOffsets"`
	WeekendReminderOffsets []int `mapstructure:"weekendReminderOffsets"`
	// CooldownDays must pass after a consumed trial before a re-join
	// is considered again.
	CooldownDays int `mapstructure:"cooldownDays"`
	// InviteExpiryHours bounds both the single-use invite link and the
	// reservation placeholder behind it.
	InviteExpiryHours int `mapstructure:"inviteExpiryHours"`
	// BlockedPhonePrefixes are calling-code prefixes rejected at the
	// phone step, e.g. "+91".
	BlockedPhonePrefixes []string `mapstructure:"blockedPhonePrefixes"`
	// SupportContact is shown in the outbound notifications.
	SupportContact string `mapstructure:"supportContact"`
}

// FallbackConf configures the no-JS fallback verification form.
type FallbackConf struct {
	// AllowedOrigins is the Origin/Referer allow-list; empty disables
	// the fallback surface entirely.
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// QueueConf configures the embedded task queue worker.
type QueueConf struct {
	Priority        map[string]int `mapstructure:"priority"`
	Concurrency     int            `mapstructure:"concurrency"`
	StrictPriority  bool           `mapstructure:"strictPriority"`
	LogLevel        string         `mapstructure:"logLevel"`
	ShutdownTimeout int            `mapstructure:"shutdownTimeout"`
}

// AppConfig is the full service configuration, one section per concern.
type AppConfig struct {
	Log        log.Conf
	Http       http.Http
	Database   database.Database
	Redis      cache.Redis
	Trace      trace.Conf
	Metrics    metrics.MetricsConfig
	Pprof      pprof.PprofConfig
	RateLimit  ratelimit.Conf
	Telegram   TelegramConf
	Reputation ReputationConf
	Trial      TrialConf
	Fallback   FallbackConf
	Queue      QueueConf
}

var (
	cfg  AppConfig
	once sync.Once
)

// NewConf loads the configuration from confDir exactly once and panics
// when it cannot be loaded or fails validation. Later calls return the
// same instance.
func NewConf(confDir string) *AppConfig {
	once.Do(func() {
		if err := conf.LoadConfigFile(confDir, &cfg); err != nil {
			panic(fmt.Sprintf("load config file error: %s", err))
		}
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			panic(fmt.Sprintf("invalid configuration: %s", err))
		}
	})
	return &cfg
}

// SetDefaults fills every optional value the sections leave unset.
func (c *AppConfig) SetDefaults() {
	if c.Telegram.RequestTimeout <= 0 {
		c.Telegram.RequestTimeout = 10
	}
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = 30
	}

	if c.Reputation.Timeout <= 0 {
		c.Reputation.Timeout = 5
	}
	if c.Reputation.CacheTTL <= 0 {
		c.Reputation.CacheTTL = 3600
	}

	if c.Trial.BaseHours <= 0 {
		c.Trial.BaseHours = 72
	}
	if c.Trial.WeekendHours <= 0 {
		c.Trial.WeekendHours = 120
	}
	if len(c.Trial.BaseReminderOffsets) == 0 {
		c.Trial.BaseReminderOffsets = []int{24, 48}
	}
	if len(c.Trial.WeekendReminderOffsets) == 0 {
		c.Trial.WeekendReminderOffsets = []int{24, 72, 96}
	}
	if c.Trial.CooldownDays <= 0 {
		c.Trial.CooldownDays = 30
	}
	if c.Trial.InviteExpiryHours <= 0 {
		c.Trial.InviteExpiryHours = 5
	}

	c.RateLimit.SetDefaults()
}

// Validate applies the fatal startup rules. The process must refuse to
// run on any of these rather than degrade at the first request.
func (c *AppConfig) Validate() error {
	if len(c.Trial.SigningSecret) < minSigningSecretLen {
		return fmt.Errorf("trial.signingSecret must be at least %d bytes", minSigningSecretLen)
	}
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return fmt.Errorf("telegram.botToken is required")
	}
	if c.Telegram.ChannelID >= 0 {
		return fmt.Errorf("telegram.channelId must be a negative channel id")
	}
	if strings.TrimSpace(c.Http.Auth.InternalSecret) == "" {
		return fmt.Errorf("http.auth.internalSecret is required for the handoff API")
	}
	if strings.TrimSpace(c.Http.Auth.SecretKey) == "" {
		return fmt.Errorf("http.auth.secretKey is required for the admin API")
	}

	for _, offset := range c.Trial.BaseReminderOffsets {
		if offset <= 0 || offset >= c.Trial.BaseHours {
			return fmt.Errorf("trial.baseReminderOffsets must fall inside (0, %d)", c.Trial.BaseHours)
		}
	}
	for _, offset := range c.Trial.WeekendReminderOffsets {
		if offset <= 0 || offset >= c.Trial.WeekendHours {
			return fmt.Errorf("trial.weekendReminderOffsets must fall inside (0, %d)", c.Trial.WeekendHours)
		}
	}

	for name, rule := range c.RateLimit.Rules {
		if rule.Limit <= 0 || rule.Window <= 0 {
			return fmt.Errorf("rateLimit.rules.%s: limit and window must be positive", name)
		}
	}

	for _, prefix := range c.Trial.BlockedPhonePrefixes {
		if !strings.HasPrefix(prefix, "+") {
			return fmt.Errorf("trial.blockedPhonePrefixes entries must start with '+', got %q", prefix)
		}
	}

	return nil
}
