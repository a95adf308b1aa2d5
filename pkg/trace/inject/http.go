package inject

import (
	"context"
	"time"

	"github.com/go-gatehouse/gatehouse/pkg/trace"
	tracecontext "github.com/go-gatehouse/gatehouse/pkg/trace/context"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// HTTPRequest wraps an outbound HTTP call in a client span.
// fn returns the response status code, response size and error.
func HTTPRequest(ctx context.Context, method, url string, fn func(ctx context.Context) (statusCode int, responseSize int64, err error)) (int, int64, error) {
	ctx, span := trace.StartSpan(ctx, "http.request",
		oteltrace.WithSpanKind(oteltrace.SpanKindClient))
	defer span.End()

	// park the span context for goroutine-local log stamping
	tracecontext.SetContext(ctx)
	defer tracecontext.ClearContext()

	startTime := time.Now()

	trace.AddSpanAttributes(span,
		attribute.String("http.method", method),
		attribute.String("http.url", url),
	)

	statusCode, responseSize, err := fn(ctx)

	duration := time.Since(startTime)

	trace.AddSpanAttributes(span,
		attribute.Int("http.status_code", statusCode),
		attribute.Int64("http.response.size", responseSize),
		attribute.Int64("http.duration_ms", duration.Milliseconds()),
	)

	if err != nil {
		trace.RecordError(span, err)
		return statusCode, responseSize, err
	}

	if statusCode >= 400 {
		trace.SetSpanStatus(span, codes.Error, "")
	} else {
		trace.SetSpanStatus(span, codes.Ok, "")
	}

	return statusCode, responseSize, err
}
