package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/prreel/api/internal/auth"
	"github.com/prreel/api/internal/logger"
	"github.com/prreel/api/internal/model"
	"github.com/prreel/api/internal/service"
	"github.com/prreel/api/pkg/response"
)

// KeyValidator resolves a presented API key to its credential
type KeyValidator interface {
	Validate(ctx context.Context, key string) (*model.APICredential, error)
}

// APIKeyAuth gates the public API. The credential owner becomes the
// request user so jobs created through a key belong to its owner.
func APIKeyAuth(keys KeyValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			token = ""
		}

		cred, err := keys.Validate(c.UserContext(), token)
		if err != nil {
			var failure *service.AuthFailure
			if errors.As(err, &failure) {
				return response.Unauthorized(c, failure.Reason)
			}
			logger.Log.WithError(err).Error("api key lookup failed")
			return response.ServiceError(c, "Failed to validate API key")
		}

		c.Locals("userId", cred.OwnerID)
		c.Locals("apiKeyId", cred.ID)
		return c.Next()
	}
}

// GetAPIKeyID extracts the authenticated credential ID from context
func GetAPIKeyID(c *fiber.Ctx) string {
	if id, ok := c.Locals("apiKeyId").(string); ok {
		return id
	}
	return ""
}
