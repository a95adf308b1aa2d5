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

package model

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sealer signs canonical row strings so stored records can be checked for
// tampering on every read. Rows that fail verification are never repaired,
// only discarded.
type Sealer struct {
	secret []byte
}

func NewSealer(secret string) *Sealer {
	return &Sealer{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of the canonical string.
func (s *Sealer) Sign(canonical string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches canonical in constant time.
func (s *Sealer) Verify(canonical, signature string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(s.Sign(canonical)), []byte(signature))
}
