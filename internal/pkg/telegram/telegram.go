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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	pkghttp "github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/metrics"
)

// Config holds bot API client settings.
type Config struct {
	BotToken       string
	APIBaseURL     string        // default https://api.telegram.org
	RequestTimeout time.Duration // per-call timeout, default 10s
	PollTimeout    int           // getUpdates long-poll hold, seconds, default 30
}

const defaultAPIBaseURL = "https://api.telegram.org"

// Client is a minimal Telegram Bot API client covering the calls the
// trial lifecycle needs.
type Client struct {
	botToken   string
	baseURL    string
	client     *resty.Client
	pollClient *resty.Client // longer timeout than the long-poll hold
	self       *User
}

// APIError is a bot API rejection: HTTP status or ok=false envelope.
type APIError struct {
	Method      string
	StatusCode  int
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %s (status %d)", e.Method, e.Description, e.StatusCode)
}

// NewClient creates a bot API client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30
	}

	return &Client{
		botToken:   cfg.BotToken,
		baseURL:    baseURL,
		client:     pkghttp.NewRestyClient(requestTimeout),
		pollClient: pkghttp.NewRestyClient(time.Duration(pollTimeout)*time.Second + 10*time.Second),
	}
}

// envelope is the bot API response wrapper.
type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (c *Client) call(ctx context.Context, rc *resty.Client, method string, payload map[string]any, result any) error {
	start := time.Now()
	apiURL := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, method)

	req := rc.R().SetContext(ctx).SetHeader("Content-Type", "application/json")
	if payload != nil {
		req.SetBody(payload)
	}

	resp, err := req.Post(apiURL)
	if err != nil {
		metrics.RecordTelegramRequest(method, "transport_error", time.Since(start))
		return errors.Wrapf(err, "telegram %s", method)
	}

	var env envelope
	if err := sonic.Unmarshal(resp.Body(), &env); err != nil {
		metrics.RecordTelegramRequest(method, "decode_error", time.Since(start))
		return errors.Wrapf(err, "telegram %s: decode response", method)
	}

	if resp.StatusCode() != http.StatusOK || !env.OK {
		metrics.RecordTelegramRequest(method, "api_error", time.Since(start))
		log.Errorw("telegram api error",
			"method", method,
			"statusCode", resp.StatusCode(),
			"errorCode", env.ErrorCode,
			"description", env.Description,
		)
		return &APIError{
			Method:      method,
			StatusCode:  resp.StatusCode(),
			Code:        env.ErrorCode,
			Description: env.Description,
		}
	}

	metrics.RecordTelegramRequest(method, "ok", time.Since(start))

	if result != nil && len(env.Result) > 0 {
		if err := sonic.Unmarshal(env.Result, result); err != nil {
			return errors.Wrapf(err, "telegram %s: decode result", method)
		}
	}
	return nil
}

// GetMe fetches and caches the bot's own identity. The cached id feeds
// the leave-event actor check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, c.client, "getMe", nil, &me); err != nil {
		return nil, err
	}
	c.self = &me
	return &me, nil
}

// Self returns the cached bot identity, nil before GetMe succeeds.
func (c *Client) Self() *User {
	return c.self
}

// SendMessage sends a plain text direct message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	return c.call(ctx, c.client, "sendMessage", payload, nil)
}

// CreateChatInviteLink creates a single-use invite link expiring at the
// given time.
func (c *Client) CreateChatInviteLink(ctx context.Context, chatID int64, memberLimit int, expireAt time.Time) (*ChatInviteLink, error) {
	payload := map[string]any{
		"chat_id":      chatID,
		"member_limit": memberLimit,
		"expire_date":  expireAt.Unix(),
	}
	var link ChatInviteLink
	if err := c.call(ctx, c.client, "createChatInviteLink", payload, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// BanChatMember removes a user from the chat.
func (c *Client) BanChatMember(ctx context.Context, chatID, userID int64) error {
	payload := map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}
	return c.call(ctx, c.client, "banChatMember", payload, nil)
}

// UnbanChatMember lifts a ban so the user may be invited again later.
func (c *Client) UnbanChatMember(ctx context.Context, chatID, userID int64) error {
	payload := map[string]any{
		"chat_id":        chatID,
		"user_id":        userID,
		"only_if_banned": true,
	}
	return c.call(ctx, c.client, "unbanChatMember", payload, nil)
}

// ForceRemove kicks a user without a permanent ban: ban then unban. A
// ban failure because the user is already gone is not an error; the
// unban still runs so a stale ban cannot linger.
func (c *Client) ForceRemove(ctx context.Context, chatID, userID int64) error {
	banErr := c.BanChatMember(ctx, chatID, userID)
	if banErr != nil {
		var apiErr *APIError
		if !errors.As(banErr, &apiErr) || apiErr.StatusCode < http.StatusBadRequest || apiErr.StatusCode >= http.StatusInternalServerError {
			return banErr
		}
		log.Infow("ban skipped, user not in chat", "chatID", chatID, "userID", userID, "description", apiErr.Description)
	}
	return c.UnbanChatMember(ctx, chatID, userID)
}

// GetChatMember fetches a user's membership state in the chat.
func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}
	var member ChatMember
	if err := c.call(ctx, c.client, "getChatMember", payload, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// GetUpdates long-polls for updates past the given offset. The bot API
// only delivers chat_member updates when they are explicitly listed in
// allowed_updates.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int, allowedUpdates []string) ([]Update, error) {
	payload := map[string]any{
		"offset":  offset,
		"timeout": timeoutSec,
	}
	if len(allowedUpdates) > 0 {
		payload["allowed_updates"] = allowedUpdates
	}
	var updates []Update
	if err := c.call(ctx, c.pollClient, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}
