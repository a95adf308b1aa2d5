package trace

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// always sample so every span carries a valid trace id
var defaultSampler = sdktrace.AlwaysSample()

// Conf configures OTLP trace export.
type Conf struct {
	// Enabled turns span export on. Spans are still created when off.
	Enabled bool `mapstructure:"enabled"`
	// Endpoint is the OTLP collector address (host:port for grpc, URL for http).
	Endpoint string `mapstructure:"endpoint"`
	// Protocol is "grpc" or "http".
	Protocol string `mapstructure:"protocol"`
	// ServiceName tags exported spans.
	ServiceName string `mapstructure:"serviceName"`
	// ServiceVersion tags exported spans.
	ServiceVersion string `mapstructure:"serviceVersion"`
	// Insecure disables TLS on the exporter connection.
	Insecure bool `mapstructure:"insecure"`
	// Headers are extra headers for the http exporter.
	Headers map[string]string `mapstructure:"headers"`
	// BatchTimeout is the batch send interval in seconds.
	BatchTimeout int `mapstructure:"batchTimeout"`
	// ExportTimeout is the export deadline in seconds.
	ExportTimeout int `mapstructure:"exportTimeout"`
	// MaxExportBatchSize caps spans per batch.
	MaxExportBatchSize int `mapstructure:"maxExportBatchSize"`
}

// SetDefaults fills unset fields.
func (c *Conf) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "gatehouse"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "1.0.0"
	}
	if c.Protocol == "" {
		c.Protocol = "grpc"
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 5
	}
	if c.ExportTimeout == 0 {
		c.ExportTimeout = 30
	}
	if c.MaxExportBatchSize == 0 {
		c.MaxExportBatchSize = 512
	}
	if c.Endpoint == "" {
		if c.Protocol == "grpc" {
			c.Endpoint = "localhost:4317"
		} else {
			c.Endpoint = "http://localhost:4318"
		}
	}
}

// InitTracerProvider sets up the global TracerProvider.
// With Enabled=false spans are created but never exported, so trace ids
// still show up in logs.
func InitTracerProvider(ctx context.Context, conf Conf) (*sdktrace.TracerProvider, func(), error) {
	if !conf.Enabled {
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(defaultSampler),
		)
		otel.SetTracerProvider(tp)
		return tp, func() {}, nil
	}

	conf.SetDefaults()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(conf.ServiceName),
			semconv.ServiceVersionKey.String(conf.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	exporter, err = createExporter(ctx, conf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(time.Duration(conf.BatchTimeout)*time.Second),
			sdktrace.WithExportTimeout(time.Duration(conf.ExportTimeout)*time.Second),
			sdktrace.WithMaxExportBatchSize(conf.MaxExportBatchSize),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(defaultSampler),
	)

	otel.SetTracerProvider(tp)

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	cleanup := func() {
		// ExportTimeout plus a small buffer, clamped to [10s, 30s]
		shutdownTimeout := min(max(time.Duration(conf.ExportTimeout)*time.Second+5*time.Second, 10*time.Second), 30*time.Second)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			// the logger may already be gone at this point
			if err == context.DeadlineExceeded {
				fmt.Printf("TracerProvider shutdown timeout after %v\n", shutdownTimeout)
			} else {
				fmt.Printf("failed to shutdown TracerProvider: %v\n", err)
			}
		}
	}

	return tp, cleanup, nil
}

func createExporter(ctx context.Context, conf Conf) (sdktrace.SpanExporter, error) {
	switch conf.Protocol {
	case "grpc":
		return createGRPCExporter(ctx, conf)
	case "http":
		return createHTTPExporter(ctx, conf)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", conf.Protocol)
	}
}

func createGRPCExporter(ctx context.Context, conf Conf) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(conf.Endpoint),
	}

	if conf.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if conf.ExportTimeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(time.Duration(conf.ExportTimeout)*time.Second))
	}

	client := otlptracegrpc.NewClient(opts...)
	return otlptrace.New(ctx, client)
}

func createHTTPExporter(ctx context.Context, conf Conf) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(conf.Endpoint),
	}

	if conf.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	if len(conf.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(conf.Headers))
	}

	if conf.ExportTimeout > 0 {
		opts = append(opts, otlptracehttp.WithTimeout(time.Duration(conf.ExportTimeout)*time.Second))
	}

	client := otlptracehttp.NewClient(opts...)
	return otlptrace.New(ctx, client)
}

// GetTracer returns a named Tracer from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
