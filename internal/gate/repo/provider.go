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

package repo

import (
	"github.com/google/wire"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/internal/gate/model"
	"github.com/go-gatehouse/gatehouse/pkg/cache"
	"github.com/go-gatehouse/gatehouse/pkg/database"
)

// ProviderSet provides the record store repositories.
var ProviderSet = wire.NewSet(
	ProvideSealer,
	ProvideRepositories,
)

// ProvideSealer builds the signature primitive from the configured secret.
func ProvideSealer(appConf *config.AppConfig) *model.Sealer {
	return model.NewSealer(appConf.Trial.SigningSecret)
}

// ProvideRepositories builds the repository bundle.
func ProvideRepositories(db database.IDatabase, cache cache.ICache, sealer *model.Sealer) *Repositories {
	return NewRepositories(db, cache, sealer)
}
