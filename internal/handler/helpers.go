package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/middleware"
	"github.com/noah-isme/activity-ticket-api/internal/service"
	"github.com/noah-isme/activity-ticket-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, apperror.ErrValidation.Detail("invalid %s", key)
	}
	return parsed, nil
}

// parseOptionalInt distinguishes an absent query value from zero, which is a
// valid state code.
func parseOptionalInt(c *fiber.Ctx, key string) (*int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return nil, apperror.ErrValidation.Detail("invalid %s", key)
	}
	return &parsed, nil
}

func parseOptionalDate(c *fiber.Ctx, key string) (*time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := dto.ParseDate(value)
	if err != nil {
		return nil, apperror.ErrValidation.Detail("invalid %s", key)
	}
	return &parsed, nil
}

func parseBody(c *fiber.Ctx, target interface{}) error {
	if err := c.BodyParser(target); err != nil {
		return apperror.ErrValidation.Detail("invalid payload")
	}
	return nil
}

func actorFromContext(c *fiber.Ctx) service.Actor {
	return middleware.CurrentActor(c)
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// fail renders err and logs it when it is not a client mistake.
func fail(base zerolog.Logger, c *fiber.Ctx, err error, action string) error {
	switch apperror.KindOf(err) {
	case apperror.KindInternal, apperror.KindUnavailable:
		requestLogger(base, c).Error().Err(err).Msg("failed to " + action)
	}
	return utils.SendAppError(c, err)
}
