package http

import (
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// NewRestyClient builds a resty client with the given timeout.
// Outbound requests carry the W3C trace context of their request context.
func NewRestyClient(timeout time.Duration) *resty.Client {
	client := resty.New().
		SetTimeout(timeout)

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
		return nil
	})

	return client
}
