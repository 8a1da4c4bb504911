package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/prreel/api/internal/auth"
	"github.com/prreel/api/pkg/response"
)

// Identity headers set by the gateway after a successful /auth/verify
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

// GatewayAuthMiddleware trusts the X-User-* headers forwarded by Traefik
// ForwardAuth. Only enable it when the API is unreachable except through
// the gateway.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get(HeaderUserID)
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		setIdentity(c, &auth.Identity{
			UserID: userID,
			Email:  c.Get(HeaderUserEmail),
			Name:   c.Get(HeaderUserName),
		})
		return c.Next()
	}
}
