package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/service"
	"github.com/noah-isme/activity-ticket-api/internal/utils"
)

// DetailHandler exposes the point categories of an activity.
type DetailHandler struct {
	service service.DetailService
	logger  zerolog.Logger
}

// NewDetailHandler constructs the handler.
func NewDetailHandler(service service.DetailService, logger zerolog.Logger) *DetailHandler {
	return &DetailHandler{
		service: service,
		logger:  logger.With().Str("component", "detail_handler").Logger(),
	}
}

// Register wires detail routes below /activity.
func (h *DetailHandler) Register(router fiber.Router) {
	router.Get("/:id/detail", h.list)
	router.Put("/:id/detail/new", h.create)
	router.Put("/:id/detail/update/:detailId", h.update)
	router.Delete("/:id/detail/:detailId", h.delete)
}

func (h *DetailHandler) list(c *fiber.Ctx) error {
	details, err := h.service.List(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(h.logger, c, err, "list details")
	}

	return utils.SendSuccess(c, "details retrieved", details)
}

func (h *DetailHandler) create(c *fiber.Ctx) error {
	var payload dto.DetailCreateRequest
	if err := parseBody(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	detail, err := h.service.Create(c.UserContext(), actorFromContext(c), c.Params("id"), payload)
	if err != nil {
		return fail(h.logger, c, err, "create detail")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "detail created", detail)
}

func (h *DetailHandler) update(c *fiber.Ctx) error {
	var payload dto.DetailUpdateRequest
	if err := parseBody(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	detail, err := h.service.Update(c.UserContext(), actorFromContext(c), c.Params("id"), c.Params("detailId"), payload)
	if err != nil {
		return fail(h.logger, c, err, "update detail")
	}

	return utils.SendSuccess(c, "detail updated", detail)
}

func (h *DetailHandler) delete(c *fiber.Ctx) error {
	detailID := c.Params("detailId")
	if err := h.service.Delete(c.UserContext(), actorFromContext(c), c.Params("id"), detailID); err != nil {
		return fail(h.logger, c, err, "delete detail")
	}

	return utils.SendSuccess(c, "detail deleted", fiber.Map{"id": detailID})
}
