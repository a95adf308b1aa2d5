// Package examples shows how the human-review tooling consumes the
// internal handoff API.
package examples

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/go-gatehouse/gatehouse/internal/gate/model"
)

// HandoffClient fetches verification records from the internal API.
// The base URL points at the internal context path, e.g.
// "http://gatehouse:8080/internal".
type HandoffClient struct {
	client *resty.Client
}

// NewHandoffClient builds a client carrying the shared secret on every
// request. The secret must match http.auth.internalSecret on the
// service side.
func NewHandoffClient(baseURL, secret string) *HandoffClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("X-API-Secret", secret).
		SetTimeout(10 * time.Second)
	return &HandoffClient{client: client}
}

type handoffEnvelope struct {
	Code   int                        `json:"code"`
	Msg    string                     `json:"msg"`
	ErrMsg string                     `json:"errMsg"`
	Detail *model.PendingVerification `json:"detail"`
}

// Verification returns the pending verification record for one user,
// or nil when the funnel has no record for that identity.
func (hc *HandoffClient) Verification(ctx context.Context, identity int64) (*model.PendingVerification, error) {
	var body handoffEnvelope
	resp, err := hc.client.R().
		SetContext(ctx).
		SetResult(&body).
		SetError(&body).
		Get(fmt.Sprintf("/verification/%d", identity))
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode() {
	case 200:
		return body.Detail, nil
	case 404:
		return nil, nil
	default:
		return nil, fmt.Errorf("handoff request failed: status %d, code %d, %s",
			resp.StatusCode(), body.Code, body.ErrMsg)
	}
}
