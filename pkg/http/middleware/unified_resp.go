package middleware

import (
	"github.com/go-gatehouse/gatehouse/internal/gate/consts"
	httpx "github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/gofiber/fiber/v2"
)

// UnifiedResponseMiddleware wraps handler output in the response envelope.
// Handlers publish their payload with c.Locals(consts.DETAIL, value).
func UnifiedResponseMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err != nil {
			return err
		}

		// business error
		if c.Response().StatusCode() != fiber.StatusOK {
			// keep the envelope a handler or guard already wrote
			if len(c.Response().Body()) > 0 {
				return nil
			}
			return httpx.WithRepErrMsg(c, httpx.Failed.Code, httpx.Failed.Msg, c.Path())
		}

		// default the status code to 200 when unset
		if c.Response().StatusCode() == 0 {
			c.Status(fiber.StatusOK)
		}

		if c.Response().StatusCode() >= fiber.StatusOK && c.Response().StatusCode() < fiber.StatusMultipleChoices {
			if detail := c.Locals(consts.DETAIL); detail != nil {
				return httpx.WithRepJSON(c, detail)
			}

			// success without payload, envelope only
			if c.Locals(consts.OPERATION) != nil {
				return httpx.WithRepNotDetail(c)
			}
		}

		return nil
	}
}
