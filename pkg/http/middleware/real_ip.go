package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// RealIPMiddleware resolves the client address behind proxies
func RealIPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if xff := c.Get("X-Forwarded-For"); xff != "" {
			// XFF: client, proxy1, proxy2
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				ip := strings.TrimSpace(parts[0])
				if ip != "" {
					c.Locals("ip", ip)
					return c.Next()
				}
			}
		}
		if ip := c.Get("X-Real-IP"); ip != "" {
			ip = strings.TrimSpace(ip)
			if ip != "" {
				c.Locals("ip", ip)
			}
		}
		return c.Next()
	}
}

// ClientIP returns the address resolved by RealIPMiddleware, falling back
// to the connection remote address.
func ClientIP(c *fiber.Ctx) string {
	if ip, ok := c.Locals("ip").(string); ok && ip != "" {
		return ip
	}
	return c.IP()
}
