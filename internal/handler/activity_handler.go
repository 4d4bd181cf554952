package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/service"
	"github.com/noah-isme/activity-ticket-api/internal/utils"
)

// ActivityHandler exposes activity CRUD endpoints.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register wires activity routes.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Put("/new", h.create)
	router.Put("/update/:id", h.update)
	router.Get("/:id", h.get)
	router.Delete("/:id", h.delete)
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	req, err := activityListRequest(c)
	if err != nil {
		return utils.SendAppError(c, err)
	}

	activities, meta, err := h.service.List(c.UserContext(), req)
	if err != nil {
		return fail(h.logger, c, err, "list activities")
	}

	return utils.SendSuccessWithMeta(c, "activities retrieved", activities, meta)
}

func activityListRequest(c *fiber.Ctx) (dto.ActivityListRequest, error) {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return dto.ActivityListRequest{}, err
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return dto.ActivityListRequest{}, err
	}
	state, err := parseOptionalInt(c, "state")
	if err != nil {
		return dto.ActivityListRequest{}, err
	}

	req := dto.ActivityListRequest{Limit: limit, Offset: offset, Owner: c.Query("owner")}
	if state != nil {
		value := models.ActivityState(*state)
		if !value.Valid() {
			return dto.ActivityListRequest{}, apperror.ErrValidation.Detail("invalid state")
		}
		req.State = &value
	}
	return req, nil
}

func (h *ActivityHandler) get(c *fiber.Ctx) error {
	activity, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(h.logger, c, err, "fetch activity")
	}

	return utils.SendSuccess(c, "activity retrieved", activity)
}

func (h *ActivityHandler) create(c *fiber.Ctx) error {
	var payload dto.ActivityCreateRequest
	if err := parseBody(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	activity, err := h.service.Create(c.UserContext(), actorFromContext(c), payload)
	if err != nil {
		return fail(h.logger, c, err, "create activity")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "activity created", activity)
}

func (h *ActivityHandler) update(c *fiber.Ctx) error {
	var payload dto.ActivityUpdateRequest
	if err := parseBody(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	activity, err := h.service.Update(c.UserContext(), actorFromContext(c), c.Params("id"), payload)
	if err != nil {
		return fail(h.logger, c, err, "update activity")
	}

	return utils.SendSuccess(c, "activity updated", activity)
}

func (h *ActivityHandler) delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.Delete(c.UserContext(), actorFromContext(c), id); err != nil {
		return fail(h.logger, c, err, "delete activity")
	}

	return utils.SendSuccess(c, "activity deleted", fiber.Map{"id": id})
}
