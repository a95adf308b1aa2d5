package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AccessLogFormat logs one structured line per request.
// Paths under excludedPaths are skipped to keep probe noise out of the logs.
func AccessLogFormat(log *zap.Logger, httpConf *Http) fiber.Handler {
	sugar := log.Sugar()

	excludedPaths := []string{
		"/health",
		"/metrics",
		"/debug/pprof/*",
	}

	if httpConf != nil && !httpConf.AccessLog {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, rule := range excludedPaths {
			if prefix, ok := strings.CutSuffix(rule, "/*"); ok {
				if strings.HasPrefix(path, prefix) {
					return c.Next()
				}
			} else if path == rule {
				return c.Next()
			}
		}

		start := time.Now()

		err := c.Next()

		latency := time.Since(start)

		query := c.Context().QueryArgs().String()
		queryStr := ""
		if query != "" {
			queryStr = "?" + query
		}

		sugar.Infow("HTTP request",
			"method", c.Method(),
			"path", path,
			"query", queryStr,
			"status", c.Response().StatusCode(),
			"ip", c.IP(),
			"user_agent", c.Get("User-Agent"),
			"latency", latency.String(),
		)

		return err
	}
}
