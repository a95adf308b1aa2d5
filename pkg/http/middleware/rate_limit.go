package middleware

import (
	"strconv"
	"time"

	httpx "github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/go-gatehouse/gatehouse/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
)

// KeyFunc extracts the limited key for a request, an empty key skips the check.
type KeyFunc func(c *fiber.Ctx) string

// RuleFunc picks the rule and key for a request, an empty key skips the
// check. Used where the applied rule depends on the request itself.
type RuleFunc func(c *fiber.Ctx) (rule, key string)

// KeyByIP keys the window on the resolved client address.
func KeyByIP(c *fiber.Ctx) string {
	return ClientIP(c)
}

// KeyByParam keys the window on a path parameter.
func KeyByParam(name string) KeyFunc {
	return func(c *fiber.Ctx) string {
		return c.Params(name)
	}
}

// RateLimitMiddleware enforces the named rule before the handler runs.
func RateLimitMiddleware(limiter ratelimit.Limiter, rule string, keyFn KeyFunc) fiber.Handler {
	return RateLimitSelectMiddleware(limiter, func(c *fiber.Ctx) (string, string) {
		return rule, keyFn(c)
	})
}

// RateLimitSelectMiddleware enforces the rule picked per request.
// A limiter backend failure lets the request through, the limiter guards
// the funnel but must never take it down.
func RateLimitSelectMiddleware(limiter ratelimit.Limiter, selectFn RuleFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rule, key := selectFn(c)
		if key == "" {
			return c.Next()
		}

		res, err := limiter.Allow(c.UserContext(), rule, key)
		if err != nil {
			log.Warnw("rate limiter unavailable, allowing request",
				"rule", rule,
				"error", err,
			)
			return c.Next()
		}

		if !res.Allowed {
			retrySecs := int64(res.RetryAfter / time.Second)
			if res.RetryAfter%time.Second > 0 {
				retrySecs++
			}
			c.Set("Retry-After", strconv.FormatInt(retrySecs, 10))
			c.Status(fiber.StatusTooManyRequests)
			return httpx.WithRepErrMsg(c, httpx.TooManyRequests.Code, httpx.TooManyRequests.Msg, c.Path())
		}

		return c.Next()
	}
}
