package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/patchnotes/api/internal/auth"
	"github.com/patchnotes/api/pkg/response"
)

// GatewayAuthMiddleware reads user identity from the headers set by the
// ForwardAuth endpoint and populates Fiber context locals. Mounted only in
// gateway mode, where Traefik has already verified the token.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get(auth.HeaderUserID)
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		c.Locals("userId", userID)
		c.Locals("email", c.Get(auth.HeaderUserEmail))
		c.Locals("name", c.Get(auth.HeaderUserName))

		return c.Next()
	}
}
