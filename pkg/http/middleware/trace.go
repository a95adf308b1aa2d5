package middleware

import (
	"github.com/go-gatehouse/gatehouse/pkg/trace/inject"
	"github.com/gofiber/fiber/v2"
)

// TraceMiddleware starts a server span per request and propagates the
// incoming W3C trace context to handlers and the goroutine-local bridge.
func TraceMiddleware() fiber.Handler {
	return inject.FiberMiddleware()
}
