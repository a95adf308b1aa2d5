package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/go-gatehouse/gatehouse/pkg/http"
	"github.com/go-gatehouse/gatehouse/pkg/http/jwt"
	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/gofiber/fiber/v2"
	goJwt "github.com/golang-jwt/jwt/v5"
)

// AuthorizationMiddleware guards the admin endpoints.
// secretKey: key used to verify the operator JWT
// This function is used as the middleware of fiber.
func AuthorizationMiddleware(secretKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		aToken := c.Get("Authorization")
		if aToken == "" {
			c.Status(fiber.StatusUnauthorized)
			return http.WithRepErrMsg(c, http.TokenBeEmpty.Code, http.TokenBeEmpty.Msg, c.Path())
		}

		parts := strings.SplitN(aToken, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			c.Status(fiber.StatusUnauthorized)
			return http.WithRepErrMsg(c, http.TokenBeEmpty.Code, http.TokenBeEmpty.Msg, c.Path())
		}

		claims, err := jwt.ParseToken(parts[1], secretKey)
		if err != nil {
			if errors.Is(err, goJwt.ErrTokenExpired) {
				c.Status(fiber.StatusUnauthorized)
				return http.WithRepErrMsg(c, http.TokenExpired.Code, http.TokenExpired.Msg, c.Path())
			}
			log.Errorf("parse token failed: %v", err)
			c.Status(fiber.StatusUnauthorized)
			return http.WithRepErrMsg(c, http.InvalidToken.Code, http.InvalidToken.Msg, c.Path())
		}

		c.Locals("claims", claims)
		return c.Next()
	}
}

// InternalAuthMiddleware guards the service-to-service endpoints with a
// shared secret carried in the X-API-Secret header. The comparison is
// constant time.
func InternalAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			log.Warn("internal API secret is not configured, rejecting request")
			c.Status(fiber.StatusUnauthorized)
			return http.WithRepErrMsg(c, http.Unauthorized.Code, http.Unauthorized.Msg, c.Path())
		}

		provided := c.Get("X-API-Secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.Status(fiber.StatusUnauthorized)
			return http.WithRepErrMsg(c, http.Unauthorized.Code, http.Unauthorized.Msg, c.Path())
		}

		return c.Next()
	}
}
