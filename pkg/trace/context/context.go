package context

import (
	"context"
	"runtime"
	"sync"

	"github.com/timandy/routine"
	"go.opentelemetry.io/otel/trace"
)

const bucketsSize = 128
const armSystem = "arm64"

type (
	contextBucket struct {
		lock sync.RWMutex
		data map[int64]context.Context
	}
	contextBuckets struct {
		buckets [bucketsSize]*contextBucket
	}
)

var goroutineContext contextBuckets

func init() {
	for i := range goroutineContext.buckets {
		goroutineContext.buckets[i] = &contextBucket{
			data: make(map[int64]context.Context),
		}
	}
}

// GetContext returns the context bound to the current goroutine, if any.
func GetContext() context.Context {
	if runtime.GOARCH == armSystem {
		return context.Background()
	}
	goid := routine.Goid()
	idx := goid % bucketsSize
	bucket := goroutineContext.buckets[idx]
	bucket.lock.RLock()
	ctx := bucket.data[goid]
	bucket.lock.RUnlock()
	return ctx
}

// SetContext binds ctx to the current goroutine.
func SetContext(ctx context.Context) {
	if runtime.GOARCH == armSystem {
		return
	}
	goid := routine.Goid()
	idx := goid % bucketsSize
	bucket := goroutineContext.buckets[idx]
	bucket.lock.Lock()
	defer bucket.lock.Unlock()
	bucket.data[goid] = ctx
}

// ClearContext removes the current goroutine's binding.
func ClearContext() {
	if runtime.GOARCH == armSystem {
		return
	}
	goid := routine.Goid()
	idx := goid % bucketsSize
	bucket := goroutineContext.buckets[idx]
	bucket.lock.Lock()
	defer bucket.lock.Unlock()
	delete(bucket.data, goid)
}

// RunWithContext runs fn with ctx bound for its duration.
func RunWithContext(ctx context.Context, fn func(ctx context.Context)) {
	SetContext(ctx)
	defer ClearContext()
	fn(ctx)
}

// ContextWithSpan backfills the active span from the goroutine context
// when ctx does not carry a valid one.
func ContextWithSpan(ctx context.Context) context.Context {
	if span := trace.SpanFromContext(ctx); !span.SpanContext().IsValid() {
		pct := GetContext()
		if pct != nil {
			if span := trace.SpanFromContext(pct); span.SpanContext().IsValid() {
				ctx = trace.ContextWithSpan(ctx, span)
			}
		}
	}
	return ctx
}
