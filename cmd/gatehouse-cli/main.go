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

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-gatehouse/gatehouse/internal/gate/config"
	"github.com/go-gatehouse/gatehouse/pkg/duration"
	"github.com/go-gatehouse/gatehouse/pkg/http/jwt"
	"github.com/go-gatehouse/gatehouse/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "gatehouse-cli",
	Short: "gatehouse-cli is the operator command line tool",
	Long:  "gatehouse-cli is the operator command line tool",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var (
	tokenConfigFile string
	tokenOperator   string
	tokenTTL        string
)

// tokenCmd mints an operator token for the admin endpoints with the
// secret from the service configuration, so operators never handle the
// raw secret directly.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "mint an operator token for the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		appConf := config.NewConf(tokenConfigFile)

		expire := appConf.Http.Auth.AccessExpire
		if tokenTTL != "" {
			d, err := duration.Parse(tokenTTL)
			if err != nil {
				return fmt.Errorf("parse ttl: %w", err)
			}
			// GenToken takes the lifetime as a scalar minute count.
			expire = time.Duration(int64(d / time.Minute))
		}

		token, err := jwt.GenToken(tokenOperator, []byte(appConf.Http.Auth.SecretKey), expire)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
		fmt.Println("Bearer " + token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenConfigFile, "conf", "conf.d", "conf dir containing config.toml")
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "", "operator name recorded in the audit trail")
	tokenCmd.Flags().StringVar(&tokenTTL, "ttl", "", "token lifetime, e.g. 12h or 7d, defaults to http.auth.accessExpire")
	_ = tokenCmd.MarkFlagRequired("operator")

	rootCmd.AddCommand(version.VersionCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
