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

package conf

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/go-gatehouse/gatehouse/pkg/log"
)

// envPrefix scopes environment overrides, e.g. GATEHOUSE_HTTP_PORT
// overrides http.port.
const envPrefix = "GATEHOUSE"

// LoadConfigFile reads config.toml from the given directory into cfg,
// which must be a non-nil pointer. Environment variables override file
// values. The file is watched and re-read on change.
func LoadConfigFile(confDir string, cfg interface{}) error {
	if v := reflect.ValueOf(cfg); v.Kind() != reflect.Ptr || v.IsNil() {
		return errors.New("cfg must be a non-nil pointer")
	}

	vCfg := viper.New()
	vCfg.AddConfigPath(confDir)
	vCfg.SetConfigName("config")
	vCfg.SetConfigType("toml")
	vCfg.SetEnvPrefix(envPrefix)
	vCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vCfg.AutomaticEnv()

	if err := vCfg.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file: %w", err)
	}
	if err := vCfg.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal configuration file: %w", err)
	}

	vCfg.WatchConfig()
	vCfg.OnConfigChange(func(e fsnotify.Event) {
		log.Infow("configuration changed, reloading", "file", e.Name)
		if err := vCfg.Unmarshal(cfg); err != nil {
			log.Errorw("failed to reload configuration", "error", err)
		}
	})

	return nil
}
