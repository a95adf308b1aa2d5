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

package telegram

import (
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
)

// ProviderSet provides the bot API client and the update poller.
var ProviderSet = wire.NewSet(
	ProvideClient,
	ProvidePoller,
)

// ProvideClient builds the bot API client from app config.
func ProvideClient(appConf *config.AppConfig) *Client {
	return NewClient(Config{
		BotToken:       appConf.Telegram.BotToken,
		APIBaseURL:     appConf.Telegram.APIBaseURL,
		RequestTimeout: time.Duration(appConf.Telegram.RequestTimeout) * time.Second,
		PollTimeout:    appConf.Telegram.PollTimeout,
	})
}

// ProvidePoller builds the update poller. The redis client persists the
// update offset across restarts.
func ProvidePoller(client *Client, rdb redis.UniversalClient, appConf *config.AppConfig) *Poller {
	return NewPoller(client, rdb, appConf.Telegram.PollTimeout)
}
