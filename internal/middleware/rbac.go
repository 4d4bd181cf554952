package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/service"
	"github.com/noah-isme/activity-ticket-api/internal/utils"
)

// RoleGuard restricts a route group to a set of roles. Denials are written to
// the audit trail when an Audit recorder is configured.
type RoleGuard struct {
	Roles      []string
	Audit      service.AuditRecorder
	EntityType string
}

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	return RoleGuard{Roles: roles}.Handler()
}

// Handler builds the fiber middleware for the guard.
func (g RoleGuard) Handler() fiber.Handler {
	allowed := make(map[string]struct{}, len(g.Roles))
	for _, role := range g.Roles {
		if normalized := normalizeRoleValue(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	entityType := g.EntityType
	if entityType == "" {
		entityType = "route"
	}

	return func(c *fiber.Ctx) error {
		role := normalizeRoleValue(c.Locals("user_role"))
		if _, ok := allowed[role]; ok {
			return c.Next()
		}

		if g.Audit != nil {
			g.Audit.Record(c.UserContext(), service.AuditEntry{
				Actor:      CurrentActor(c),
				Action:     service.AuditAccessDenied,
				EntityType: entityType,
				EntityID:   c.Method() + " " + c.Path(),
				Metadata:   map[string]interface{}{"reason": apperror.ErrForbidden.Code, "role": role},
			})
		}
		return utils.SendAppError(c, apperror.ErrForbidden)
	}
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
