package log

import (
	tracectx "github.com/go-gatehouse/gatehouse/pkg/trace/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// traceCore is a zap Core wrapper that stamps trace info onto every entry.
type traceCore struct {
	zapcore.Core
}

func (c *traceCore) With(fields []zapcore.Field) zapcore.Core {
	return &traceCore{
		Core: c.Core.With(fields),
	}
}

// Write adds trace_id/span_id from the goroutine context, when present.
func (c *traceCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	ctx := tracectx.GetContext()
	if ctx == nil {
		return c.Core.Write(entry, fields)
	}

	span := trace.SpanFromContext(ctx)
	if span == nil {
		return c.Core.Write(entry, fields)
	}

	spanCtx := span.SpanContext()
	if !spanCtx.IsValid() {
		return c.Core.Write(entry, fields)
	}

	traceID := spanCtx.TraceID()
	spanID := spanCtx.SpanID()

	// SpanContext() stays readable after End(), so ended spans still stamp ids
	if traceID.IsValid() && spanID.IsValid() {
		traceFields := []zapcore.Field{
			zap.String("trace_id", traceID.String()),
			zap.String("span_id", spanID.String()),
		}

		if spanCtx.TraceFlags() != 0 {
			traceFields = append(traceFields, zap.Uint8("trace_flags", uint8(spanCtx.TraceFlags())))
		}

		fields = append(traceFields, fields...)
	}

	return c.Core.Write(entry, fields)
}

func (c *traceCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return c.Core.Check(ent, ce)
}

func (c *traceCore) Enabled(level zapcore.Level) bool {
	return c.Core.Enabled(level)
}

func (c *traceCore) Sync() error {
	return c.Core.Sync()
}

func wrapCoreWithTrace(core zapcore.Core) zapcore.Core {
	return &traceCore{Core: core}
}
