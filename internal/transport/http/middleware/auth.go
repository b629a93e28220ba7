package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/mediadash/backend/internal/config"
	"github.com/mediadash/backend/internal/transport/http/dto"
)

func AdminAuth(cfg *config.Config) fiber.Handler {
	return tokenAuth(cfg.Auth.AdminAPIKey, "X-Admin-Token")
}

func WorkerAuth(cfg *config.Config) fiber.Handler {
	return tokenAuth(cfg.Auth.WorkerToken, "X-Worker-Token")
}

// tokenAuth accepts the token from header or as a bearer token. An empty
// expected token disables the check.
func tokenAuth(expected, header string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if expected == "" {
			return c.Next()
		}

		headerToken := c.Get(header)
		if headerToken == "" {
			auth := c.Get(fiber.HeaderAuthorization)
			const prefix = "Bearer "
			if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
				headerToken = auth[len(prefix):]
			}
		}

		if subtle.ConstantTimeCompare([]byte(headerToken), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.Fail("unauthorized"))
		}

		return c.Next()
	}
}
