package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const defaultRequestTimeout = 10 * time.Second

// Deadline bounds the user context of every request. Services pass that
// context to storage, so slow queries are cancelled once it expires.
func Deadline(timeout time.Duration) fiber.Handler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()

		c.SetUserContext(ctx)
		return c.Next()
	}
}
