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

// Package reputation looks up IP reputation verdicts from an external
// provider. Lookups fail open: a provider outage yields an api_failed
// verdict, never an error, and the caller decides what that means.
package reputation

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/go-gatehouse/gatehouse/internal/gate/consts"
	"github.com/go-gatehouse/gatehouse/pkg/cache"
	pkghttp "github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
	"github.com/go-gatehouse/gatehouse/pkg/trace/inject"
)

// Config configures the reputation client.
type Config struct {
	// Endpoint is the provider base URL; empty disables lookups and
	// every check comes back api_failed.
	Endpoint string
	// Keys are the provider API keys. The key for an address is chosen
	// by hashing the address, with one failover to the next key.
	Keys []string
	// Timeout bounds a single lookup request.
	Timeout time.Duration
	// CacheTTL bounds verdict reuse. Failed lookups are never cached.
	CacheTTL time.Duration
}

// Verdict is the reputation outcome for one address.
type Verdict struct {
	IP           string `json:"ip"`
	IsVPN        bool   `json:"is_vpn"`
	IsProxy      bool   `json:"is_proxy"`
	IsTor        bool   `json:"is_tor"`
	IsDatacenter bool   `json:"is_datacenter"`
	CountryCode  string `json:"country_code"`
	// APIFailed marks a verdict synthesized from a lookup failure.
	// Callers treat it as advisory and proceed flagged for review.
	APIFailed bool `json:"api_failed,omitempty"`
	// Raw is the untouched provider response, persisted alongside the
	// decoded fields for later inspection.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Anonymizing reports whether the address hides its origin.
func (v *Verdict) Anonymizing() bool {
	return v.IsVPN || v.IsProxy || v.IsTor || v.IsDatacenter
}

// Client resolves addresses against the provider with a verdict cache
// in front. Production wires the hybrid cache, fastcache locally and
// Redis across replicas.
type Client struct {
	endpoint string
	keys     []string
	cacheTTL time.Duration
	rc       *resty.Client
	store    cache.ICache
	flight   singleflight.Group
}

// NewClient builds a reputation client. store may be nil.
func NewClient(cfg Config, store cache.ICache) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}

	return &Client{
		endpoint: cfg.Endpoint,
		keys:     cfg.Keys,
		cacheTTL: cacheTTL,
		rc:       pkghttp.NewRestyClient(timeout),
		store:    store,
	}
}

// Check resolves the verdict for ip. It never returns an error: any
// transport, decode, or provider failure comes back as an api_failed
// verdict for the caller's fail-open handling. Concurrent checks of the
// same address share one provider request.
func (c *Client) Check(ctx context.Context, ip string) *Verdict {
	if v := c.fromCache(ctx, ip); v != nil {
		metrics.RecordReputationCheck("cache_hit", 0)
		return v
	}

	res, err, _ := c.flight.Do(ip, func() (any, error) {
		start := time.Now()
		v, err := c.lookupWithFailover(ctx, ip)
		if err != nil {
			metrics.RecordReputationCheck("api_failed", time.Since(start))
			return nil, err
		}
		metrics.RecordReputationCheck("ok", time.Since(start))
		c.toCache(ctx, ip, v)
		return v, nil
	})
	if err != nil {
		log.Warnw("reputation lookup failed, proceeding fail-open", "ip", ip, "error", err)
		return &Verdict{IP: ip, APIFailed: true}
	}
	return res.(*Verdict)
}

// keyIndex picks the key for an address so repeated lookups of the same
// address land on the same provider quota.
func (c *Client) keyIndex(ip string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ip))
	return int(h.Sum32() % uint32(len(c.keys)))
}

func (c *Client) lookupWithFailover(ctx context.Context, ip string) (*Verdict, error) {
	if c.endpoint == "" {
		return nil, errEndpointUnset
	}
	if len(c.keys) == 0 {
		return c.lookup(ctx, ip, "")
	}

	idx := c.keyIndex(ip)
	v, err := c.lookup(ctx, ip, c.keys[idx])
	if err != nil && len(c.keys) > 1 {
		fallback := c.keys[(idx+1)%len(c.keys)]
		log.Debugw("reputation primary key failed, trying fallback", "ip", ip, "error", err)
		return c.lookup(ctx, ip, fallback)
	}
	return v, err
}

func (c *Client) lookup(ctx context.Context, ip, key string) (*Verdict, error) {
	params := map[string]string{"q": ip}
	if key != "" {
		params["key"] = key
	}

	// span records the bare endpoint, the api key stays in params
	var resp *resty.Response
	_, _, err := inject.HTTPRequest(ctx, http.MethodGet, c.endpoint,
		func(ctx context.Context) (int, int64, error) {
			r, err := c.rc.R().SetContext(ctx).SetQueryParams(params).Get(c.endpoint)
			if err != nil {
				return 0, 0, err
			}
			resp = r
			return r.StatusCode(), int64(len(r.Body())), nil
		})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &LookupError{StatusCode: resp.StatusCode()}
	}

	body := resp.Body()
	var v Verdict
	if err := sonic.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	// Provider-level errors come back inside a 200 body.
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := sonic.Unmarshal(body, &probe); err == nil && len(probe.Error) > 0 {
		return nil, &LookupError{StatusCode: resp.StatusCode(), ProviderError: string(probe.Error)}
	}

	v.IP = ip
	v.Raw = json.RawMessage(body)
	return &v, nil
}

func (c *Client) fromCache(ctx context.Context, ip string) *Verdict {
	if c.store == nil {
		return nil
	}
	raw, err := c.store.Get(ctx, consts.RedisKeyReputation+ip).Result()
	if err != nil || raw == "" {
		return nil
	}
	var v Verdict
	if sonic.Unmarshal([]byte(raw), &v) != nil {
		return nil
	}
	return &v
}

func (c *Client) toCache(ctx context.Context, ip string, v *Verdict) {
	if c.store == nil {
		return
	}
	raw, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, consts.RedisKeyReputation+ip, string(raw), c.cacheTTL).Err(); err != nil {
		log.Warnw("failed to cache reputation verdict", "ip", ip, "error", err)
	}
}
