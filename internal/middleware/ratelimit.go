package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/prreel/api/internal/logger"
	"github.com/prreel/api/internal/ratelimit"
	"github.com/prreel/api/pkg/response"
)

// Rate limit response headers
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

type RateLimiter struct {
	limiter ratelimit.Limiter
	now     func() time.Time
}

func NewRateLimiter(limiter ratelimit.Limiter) *RateLimiter {
	return &RateLimiter{limiter: limiter, now: time.Now}
}

// PerCredential limits requests per API credential. It must run after
// APIKeyAuth.
func (rl *RateLimiter) PerCredential() fiber.Handler {
	return rl.Limit(GetAPIKeyID)
}

// Limit creates a rate limiting middleware keyed by keyFn. Requests with an
// empty key are not limited.
func (rl *RateLimiter) Limit(keyFn func(*fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := keyFn(c)
		if key == "" {
			return c.Next()
		}
		// Ctx strings alias the request buffer and the limiter keeps its keys
		key = utils.CopyString(key)

		res, err := rl.limiter.Allow(c.UserContext(), key)
		if err != nil {
			// Fail open: a broken counter store must not take the API down
			logger.Log.WithError(err).Warn("rate limiter unavailable")
			return c.Next()
		}

		c.Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
		c.Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
		c.Set(HeaderRateLimitReset, strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retryAfter := res.RetryAfter(rl.now())
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retryAfter.Seconds())))
			return response.RateLimited(c, fiber.Map{
				"limit":     res.Limit,
				"remaining": res.Remaining,
				"resetAt":   res.ResetAt.UTC().Format(time.RFC3339),
			})
		}

		return c.Next()
	}
}
