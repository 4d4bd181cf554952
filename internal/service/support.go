package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"reflect"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/events"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
)

const tracerName = "github.com/noah-isme/activity-ticket-api/internal/service"

// maxAttempts bounds how often a transient storage failure is retried.
const maxAttempts = 3

// NewValidator returns a validator reporting json field names.
func NewValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return validate
}

func validationError(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return apperror.ErrValidation.Wrap(err)
	}

	problems := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		problems = append(problems, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}

	return &apperror.Error{
		Kind:    apperror.KindValidation,
		Code:    apperror.ErrValidation.Code,
		Message: "invalid payload: " + strings.Join(problems, "; "),
		Err:     err,
	}
}

// storageError classifies err and swaps record not found for notFound.
func storageError(err error, notFound *apperror.Error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) && notFound != nil {
		return notFound
	}
	return repository.Classify(err)
}

// withRetry runs op until it succeeds, fails with a non transient error or
// runs out of attempts.
func withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond

	err := backoff.Retry(func() error {
		err := op()
		if err == nil || apperror.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxAttempts-1), ctx))

	return repository.Classify(err)
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, apperror.CodeOf(err))
}

// textSanitizer strips markup from short plain text fields and keeps a safe
// subset of HTML in long form descriptions.
type textSanitizer struct {
	plain *bluemonday.Policy
	rich  *bluemonday.Policy
}

func newTextSanitizer() textSanitizer {
	return textSanitizer{
		plain: bluemonday.StrictPolicy(),
		rich:  bluemonday.UGCPolicy(),
	}
}

func (s textSanitizer) Plain(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.plain.Sanitize(value)))
}

func (s textSanitizer) Rich(value string) string {
	return strings.TrimSpace(s.rich.Sanitize(value))
}

// publishEvent hands a committed transition to the bus. Failures are logged
// and never surface to the caller.
func publishEvent(ctx context.Context, publisher events.Publisher, logger zerolog.Logger, event string, data interface{}) {
	if err := publisher.Publish(ctx, event, data); err != nil {
		logger.Warn().Err(err).Str("event", event).Msg("failed to publish workflow event")
	}
}
