package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/prreel/api/internal/auth"
	"github.com/prreel/api/pkg/response"
)

// WebhookSecret authenticates inbound service callbacks carrying a shared
// bearer secret. An empty secret rejects every request.
func WebhookSecret(secret string) fiber.Handler {
	expected := []byte(secret)
	return func(c *fiber.Ctx) error {
		token, ok := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok || len(expected) == 0 || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			return response.Unauthorized(c, "Invalid webhook secret")
		}
		return c.Next()
	}
}
