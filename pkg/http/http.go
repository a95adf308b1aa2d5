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

package http

import (
	"time"
)

type Http struct {
	Host                string
	Port                int
	InternalContextPath string
	ExternalContextPath string
	BodyLimit           int
	PProf               bool
	ExposeMetrics       bool
	AccessLog           bool
	ReadTimeout         int
	WriteTimeout        int
	IdleTimeout         int
	ShutdownTimeout     int
	TLS                 TLS
	Auth                Auth
}

type TLS struct {
	CertFile string
	KeyFile  string
}

type Auth struct {
	// SecretKey signs the admin JWT tokens
	SecretKey    string
	AccessExpire time.Duration
	// InternalSecret guards the service-to-service endpoints
	InternalSecret string
}
