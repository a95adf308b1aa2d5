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

package reputation

import (
	"time"

	"github.com/google/wire"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/pkg/cache"
)

// ProviderSet provides the reputation client.
var ProviderSet = wire.NewSet(ProvideClient)

// ProvideClient builds the reputation client from app config and the
// layered verdict cache.
func ProvideClient(appConf *config.AppConfig, store *cache.HybridCache) *Client {
	return NewClient(Config{
		Endpoint: appConf.Reputation.Endpoint,
		Keys:     appConf.Reputation.Keys,
		Timeout:  time.Duration(appConf.Reputation.Timeout) * time.Second,
		CacheTTL: time.Duration(appConf.Reputation.CacheTTL) * time.Second,
	}, store)
}
