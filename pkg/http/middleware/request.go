package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/go-gatehouse/gatehouse/pkg/id"
)

// RequestMiddleware assigns every request an id, honoring one the
// caller already carries.
func RequestMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestId := string(c.Request().Header.Peek("X-Request-Id"))
		if requestId == "" {
			requestId = id.GetUUID()
		}
		c.Request().Header.Set("X-Request-Id", requestId)
		c.Set("X-Request-Id", requestId)
		c.Locals("request_id", requestId)
		return c.Next()
	}
}
