package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/middleware"
	"github.com/noah-isme/activity-ticket-api/internal/service"
	"github.com/noah-isme/activity-ticket-api/internal/utils"
)

// AuthHandler signs administrators in and out.
type AuthHandler struct {
	service service.AuthService
	logger  zerolog.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(service service.AuthService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger.With().Str("component", "auth_handler").Logger(),
	}
}

// SignIn handles POST /user/admin/sign-in.
func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var payload dto.SignInRequest
	if err := parseBody(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	result, err := h.service.SignIn(c.UserContext(), payload)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindUnauthorized {
			requestLogger(h.logger, c).Warn().Str("name", payload.Name).Msg("sign-in rejected")
		}
		return fail(h.logger, c, err, "sign in")
	}

	return utils.SendSuccess(c, "signed in", result)
}

// SignOut handles POST /user/sign-out. It expects JWTProtected upstream.
func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return utils.SendAppError(c, apperror.ErrUnauthenticated)
	}

	if err := h.service.SignOut(c.UserContext(), claims); err != nil {
		return fail(h.logger, c, err, "sign out")
	}

	return utils.SendSuccess(c, "signed out", nil)
}

// StudentAuthHandler signs students in with an authorization code from the
// school identity provider.
type StudentAuthHandler struct {
	service service.StudentAuthService
	logger  zerolog.Logger
}

// NewStudentAuthHandler constructs the handler.
func NewStudentAuthHandler(service service.StudentAuthService, logger zerolog.Logger) *StudentAuthHandler {
	return &StudentAuthHandler{
		service: service,
		logger:  logger.With().Str("component", "student_auth_handler").Logger(),
	}
}

// SignIn handles GET /user/oauth2/sign-in?code=.
func (h *StudentAuthHandler) SignIn(c *fiber.Ctx) error {
	result, err := h.service.SignIn(c.UserContext(), c.Query("code"))
	if err != nil {
		if kind := apperror.KindOf(err); kind == apperror.KindUnauthorized || kind == apperror.KindAuthorization {
			requestLogger(h.logger, c).Warn().Str("reason", apperror.CodeOf(err)).Msg("student sign-in rejected")
		}
		return fail(h.logger, c, err, "student sign in")
	}

	return utils.SendSuccess(c, "signed in", result)
}
