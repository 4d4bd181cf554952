package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/service"
	"github.com/noah-isme/activity-ticket-api/internal/utils"
)

// AuditHandler exposes the audit trail to super users.
type AuditHandler struct {
	service service.AuditService
	logger  zerolog.Logger
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service service.AuditService, logger zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		service: service,
		logger:  logger.With().Str("component", "audit_handler").Logger(),
	}
}

// Register wires audit routes.
func (h *AuditHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *AuditHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendAppError(c, err)
	}
	pageSize, err := parseQueryInt(c, "pageSize")
	if err != nil {
		return utils.SendAppError(c, err)
	}

	entries, meta, err := h.service.List(c.UserContext(), dto.AuditLogListRequest{
		Page:       page,
		PageSize:   pageSize,
		ActorID:    c.Query("actorId"),
		Action:     c.Query("action"),
		EntityType: c.Query("entityType"),
		EntityID:   c.Query("entityId"),
	})
	if err != nil {
		return fail(h.logger, c, err, "list audit logs")
	}

	return utils.SendSuccessWithMeta(c, "audit logs retrieved", entries, meta)
}
