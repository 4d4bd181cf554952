package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/utils"
)

// Auth role constants used by WithAuth helper.
const (
	AuthRoleAny     = "any"
	AuthRoleAdmin   = "admin"
	AuthRoleSU      = "su"
	AuthRoleStudent = "student"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// WithAuth wraps a handler with authentication and coarse role guards.
// AuthRoleAdmin admits every administrative user type.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}

	requireUser := opts.RequireUser || role != AuthRoleAny

	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			if requireUser {
				return utils.SendAppError(c, apperror.ErrUnauthenticated)
			}
			return handler(c)
		}
		if role == AuthRoleAny {
			return handler(c)
		}

		userType, ok := models.ParseUserType(normalizeRoleValue(c.Locals("user_role")))
		if !ok {
			return utils.SendAppError(c, apperror.ErrForbidden)
		}

		switch role {
		case AuthRoleAdmin:
			ok = userType.IsAdmin()
		case AuthRoleStudent:
			ok = userType == models.UserStudent
		default:
			ok = userType.Role() == role
		}
		if !ok {
			return utils.SendAppError(c, apperror.ErrForbidden)
		}

		return handler(c)
	}
}
