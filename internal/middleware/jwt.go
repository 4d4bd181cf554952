package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/service"
	"github.com/noah-isme/activity-ticket-api/internal/utils"
)

// TokenVerifier validates a raw access token.
type TokenVerifier interface {
	ParseToken(ctx context.Context, raw string) (*service.Claims, error)
}

// JWTProtected rejects requests without a valid access token and exposes the
// verified identity through Locals.
func JWTProtected(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return utils.SendAppError(c, apperror.ErrUnauthenticated.Detail("authorization header missing"))
		}

		claims, err := verifier.ParseToken(c.UserContext(), token)
		if err != nil {
			return utils.SendAppError(c, err)
		}

		c.Locals("user_id", claims.Subject)
		c.Locals("user_role", claims.Actor().Role)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// bearerToken accepts both "Bearer <jwt>" and a bare token, which is what the
// web client forwards from its cookie.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	const bearer = "bearer "
	if len(header) >= len(bearer) && strings.EqualFold(header[:len(bearer)], bearer) {
		return strings.TrimSpace(header[len(bearer):])
	}
	return header
}

// CurrentClaims returns the verified claims of the request, if any.
func CurrentClaims(c *fiber.Ctx) (*service.Claims, bool) {
	claims, ok := c.Locals("claims").(*service.Claims)
	return claims, ok && claims != nil
}

// CurrentActor returns the principal authenticated for the request.
func CurrentActor(c *fiber.Ctx) service.Actor {
	id, _ := c.Locals("user_id").(string)
	role, _ := c.Locals("user_role").(string)
	return service.Actor{ID: id, Role: role}
}
