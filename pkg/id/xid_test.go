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

package id_test

import (
	"testing"

	"github.com/go-gatehouse/gatehouse/pkg/id"
)

func TestGetXid(t *testing.T) {
	got := id.GetXid()

	if len(got) != 20 {
		t.Errorf("GetXid() length = %d, want 20", len(got))
	}

	if got2 := id.GetXid(); got == got2 {
		t.Errorf("GetXid() generated duplicate IDs: %s", got)
	}
}

func TestGetULID(t *testing.T) {
	got := id.GetULID()

	if len(got) != 26 {
		t.Errorf("GetULID() length = %d, want 26", len(got))
	}

	if got2 := id.GetULID(); got == got2 {
		t.Errorf("GetULID() generated duplicate IDs: %s", got)
	}
}
