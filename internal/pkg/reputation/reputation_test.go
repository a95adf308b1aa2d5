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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-gatehouse/gatehouse/pkg/cache"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, keys []string, store cache.ICache) *Client {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewClient(Config{
		Endpoint: ts.URL,
		Keys:     keys,
		Timeout:  2 * time.Second,
		CacheTTL: time.Minute,
	}, store)
}

// localStore builds a local-only hybrid cache, no redis behind it.
func localStore() *cache.HybridCache {
	return cache.NewHybridCache(
		cache.NewFastCache(cache.FastCacheConfig{}), nil,
		cache.HybridCacheConfig{LocalEnabled: true},
	)
}

func TestClient_Check(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "198.51.100.7", r.URL.Query().Get("q"))
		assert.Equal(t, "key-a", r.URL.Query().Get("key"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"is_vpn":       false,
			"is_proxy":     false,
			"is_tor":       false,
			"country_code": "DE",
		})
	}, []string{"key-a"}, nil)

	v := c.Check(context.Background(), "198.51.100.7")
	require.NotNil(t, v)
	assert.False(t, v.APIFailed)
	assert.False(t, v.Anonymizing())
	assert.Equal(t, "DE", v.CountryCode)
	assert.Equal(t, "198.51.100.7", v.IP)
	assert.NotEmpty(t, v.Raw)
}

func TestClient_Check_Anonymizing(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"vpn", map[string]any{"is_vpn": true, "country_code": "NL"}},
		{"proxy", map[string]any{"is_proxy": true, "country_code": "NL"}},
		{"tor", map[string]any{"is_tor": true, "country_code": "NL"}},
		{"datacenter", map[string]any{"is_datacenter": true, "country_code": "NL"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.body)
			}, nil, nil)

			v := c.Check(context.Background(), "203.0.113.9")
			assert.True(t, v.Anonymizing())
			assert.False(t, v.APIFailed)
		})
	}
}

func TestClient_Check_APIFailed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "provider error body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"code": 402, "message": "quota exceeded"},
				})
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler, []string{"key-a"}, nil)

			v := c.Check(context.Background(), "192.0.2.4")
			require.NotNil(t, v)
			assert.True(t, v.APIFailed)
			assert.Equal(t, "192.0.2.4", v.IP)
		})
	}
}

func TestClient_Check_EndpointUnset(t *testing.T) {
	c := NewClient(Config{}, nil)

	v := c.Check(context.Background(), "192.0.2.4")
	assert.True(t, v.APIFailed)
}

func TestClient_KeyFailover(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"country_code": "FR"})
	}, []string{"key-a", "key-b"}, nil)

	v := c.Check(context.Background(), "198.51.100.20")
	assert.False(t, v.APIFailed)
	assert.Equal(t, "FR", v.CountryCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_KeySelectionDeterministic(t *testing.T) {
	c := &Client{keys: []string{"key-a", "key-b", "key-c"}}

	first := c.keyIndex("198.51.100.7")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.keyIndex("198.51.100.7"))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 3)
}

func TestClient_CacheHit(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"country_code": "SE"})
	}, nil, localStore())

	first := c.Check(context.Background(), "198.51.100.30")
	second := c.Check(context.Background(), "198.51.100.30")

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, first.CountryCode, second.CountryCode)
}

func TestClient_FailuresNotCached(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"country_code": "SE"})
	}, nil, localStore())

	first := c.Check(context.Background(), "198.51.100.31")
	assert.True(t, first.APIFailed)

	second := c.Check(context.Background(), "198.51.100.31")
	assert.False(t, second.APIFailed)
	assert.Equal(t, "SE", second.CountryCode)
}
