package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/activity-ticket-api/internal/utils"
)

const (
	rateLimitKeyPrefix   = "ratelimit:"
	redisStorageDeadline = time.Second
)

// RateLimitConfig describes a fixed window limiter. Counters live in Redis
// when a client is supplied so every API instance shares the window.
type RateLimitConfig struct {
	Identifier string
	Max        int
	Window     time.Duration
	Redis      *redis.Client
}

// RateLimit limits requests per authenticated user, falling back to the
// client IP for anonymous routes such as sign-in.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	return NewRateLimiter(RateLimitConfig{Identifier: identifier, Max: max, Window: window})
}

// NewRateLimiter builds the limiter middleware described by cfg.
func NewRateLimiter(cfg RateLimitConfig) fiber.Handler {
	if cfg.Max <= 0 {
		cfg.Max = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}

	limiterCfg := limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			principal, _ := c.Locals("user_id").(string)
			if principal == "" {
				principal = c.IP()
			}
			return fmt.Sprintf("%s:%s", cfg.Identifier, principal)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return utils.SendError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests")
		},
	}
	if cfg.Redis != nil {
		limiterCfg.Storage = &redisStorage{client: cfg.Redis, prefix: rateLimitKeyPrefix}
	}

	return limiter.New(limiterCfg)
}

// redisStorage adapts go-redis to fiber.Storage. The client is owned by the
// caller, so Close is a no-op.
type redisStorage struct {
	client *redis.Client
	prefix string
}

func (s *redisStorage) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisStorageDeadline)
	defer cancel()

	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return value, err
}

func (s *redisStorage) Set(key string, value []byte, exp time.Duration) error {
	if key == "" || len(value) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisStorageDeadline)
	defer cancel()

	return s.client.Set(ctx, s.prefix+key, value, exp).Err()
}

func (s *redisStorage) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisStorageDeadline)
	defer cancel()

	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *redisStorage) Reset() error {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *redisStorage) Close() error {
	return nil
}
