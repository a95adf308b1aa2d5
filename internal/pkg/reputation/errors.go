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
	"fmt"

	"github.com/pkg/errors"
)

var errEndpointUnset = errors.New("reputation endpoint not configured")

// LookupError is a provider response that could not be used.
type LookupError struct {
	StatusCode    int
	ProviderError string
}

func (e *LookupError) Error() string {
	if e.ProviderError != "" {
		return fmt.Sprintf("reputation provider error: %s", e.ProviderError)
	}
	return fmt.Sprintf("reputation provider returned status %d", e.StatusCode)
}
