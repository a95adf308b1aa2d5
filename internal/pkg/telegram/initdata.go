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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Init data freshness bounds.
const (
	InitDataMaxAge  = 300 * time.Second // auth_date older than this is stale
	InitDataMaxSkew = 60 * time.Second  // tolerated client clock drift into the future
)

var (
	// ErrInitDataMalformed marks init data that cannot be parsed.
	ErrInitDataMalformed = errors.New("init data malformed")
	// ErrInitDataHash marks a signature chain mismatch.
	ErrInitDataHash = errors.New("init data hash mismatch")
	// ErrInitDataExpired marks init data outside the freshness bounds.
	ErrInitDataExpired = errors.New("init data expired")
)

// ValidateInitData verifies mini-app init data: the HMAC chain keyed by
// the bot token, then auth_date freshness. Returns the authenticated
// user on success.
func ValidateInitData(initData, botToken string, now time.Time, maxAge, maxSkew time.Duration) (*User, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, errors.Wrap(ErrInitDataMalformed, err.Error())
	}

	providedHash := values.Get("hash")
	if providedHash == "" {
		return nil, errors.Wrap(ErrInitDataMalformed, "hash field missing")
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	checkString := strings.Join(pairs, "\n")

	// secret = HMAC("WebAppData" as key, bot token as message)
	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	secret := secretMac.Sum(nil)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(checkString))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(providedHash)) {
		return nil, ErrInitDataHash
	}

	authDateRaw := values.Get("auth_date")
	authDate, err := strconv.ParseInt(authDateRaw, 10, 64)
	if err != nil {
		return nil, errors.Wrap(ErrInitDataMalformed, "auth_date not a unix timestamp")
	}
	authTime := time.Unix(authDate, 0)

	if authTime.After(now.Add(maxSkew)) {
		return nil, errors.Wrap(ErrInitDataExpired, "auth_date in the future")
	}
	if now.Sub(authTime) > maxAge {
		return nil, errors.Wrap(ErrInitDataExpired, "auth_date too old")
	}

	userRaw := values.Get("user")
	if userRaw == "" {
		return nil, errors.Wrap(ErrInitDataMalformed, "user field missing")
	}
	var user User
	if err := sonic.Unmarshal([]byte(userRaw), &user); err != nil {
		return nil, errors.Wrap(ErrInitDataMalformed, "user field not valid JSON")
	}
	if user.ID == 0 {
		return nil, errors.Wrap(ErrInitDataMalformed, "user id missing")
	}

	return &user, nil
}

// InitDataValidator binds validation to a bot token with the default
// freshness bounds.
type InitDataValidator struct {
	botToken string
	maxAge   time.Duration
	maxSkew  time.Duration
}

// NewInitDataValidator creates a validator for the given bot token.
func NewInitDataValidator(botToken string) *InitDataValidator {
	return &InitDataValidator{
		botToken: botToken,
		maxAge:   InitDataMaxAge,
		maxSkew:  InitDataMaxSkew,
	}
}

// Validate checks the given init data against the current clock.
func (v *InitDataValidator) Validate(initData string) (*User, error) {
	return ValidateInitData(initData, v.botToken, time.Now(), v.maxAge, v.maxSkew)
}
