package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/prreel/api/internal/logger"
)

const HeaderRequestID = "X-Request-ID"

// RequestLogger tags every request with an id and logs it once handled.
// Errors are returned untouched so the app error handler still renders them.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := c.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(HeaderRequestID, requestID)
		c.Locals("requestId", requestID)

		err := c.Next()

		status := c.Response().StatusCode()
		entry := logger.Log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Method(),
			"uri":        c.OriginalURL(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.IP(),
			"user_agent": string(c.Request().Header.UserAgent()),
		})

		switch {
		case err != nil:
			entry.WithError(err).Error("request processing failed")
		case status >= fiber.StatusInternalServerError:
			entry.Error("request completed with server error")
		case status >= fiber.StatusBadRequest:
			entry.Warn("request completed with client error")
		default:
			entry.Info("request completed")
		}
		return err
	}
}
