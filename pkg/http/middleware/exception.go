package middleware

import (
	"runtime/debug"

	"github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/gofiber/fiber/v2"
)

// ExceptionMiddleware recovers from panics and answers with a 500 envelope.
// This function is used as the middleware of fiber.
func ExceptionMiddleware(c *fiber.Ctx) error {
	defer func() {
		if err := recover(); err != nil {
			_ = http.WithRepErr(c, http.InternalError.Code, errorToString(err), c.Path())
			log.Errorf("panic: %v", err)
		}
	}()

	return c.Next()
}

func errorToString(err any) string {
	switch v := err.(type) {
	case http.ResponseErr:
		// expected business error, safe to hand back to the client
		if errMsg, ok := v.ErrMsg.(string); ok {
			return errMsg
		}
		return http.InternalError.Msg
	case error:
		// never leak stack traces to the client
		log.Errorf("panic: %v\n%s", v, debug.Stack())
		return http.InternalError.Msg
	default:
		if errMsg, ok := v.(string); ok {
			return errMsg
		}
		return http.InternalError.Msg
	}
}
