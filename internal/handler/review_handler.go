package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/service"
	"github.com/noah-isme/activity-ticket-api/internal/utils"
)

// ReviewHandler exposes submission, decisions and the reviewer queue.
type ReviewHandler struct {
	service service.ReviewService
	logger  zerolog.Logger
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service service.ReviewService, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: service,
		logger:  logger.With().Str("component", "review_handler").Logger(),
	}
}

// RegisterQueue wires the reviewer queue. It must be registered before the
// activity routes so /review is not taken for an activity id.
func (h *ReviewHandler) RegisterQueue(router fiber.Router) {
	router.Get("/review/reviewer", h.queue)
}

// Register wires review routes below /activity.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Get("/:id/review", h.list)
	router.Put("/:id/review/new", h.submit)
	router.Put("/:id/review/:reviewId", h.decide)
}

func (h *ReviewHandler) list(c *fiber.Ctx) error {
	reviews, err := h.service.ListForActivity(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(h.logger, c, err, "list reviews")
	}

	return utils.SendSuccess(c, "reviews retrieved", reviews)
}

func (h *ReviewHandler) submit(c *fiber.Ctx) error {
	review, err := h.service.Submit(c.UserContext(), actorFromContext(c), c.Params("id"))
	if err != nil {
		return fail(h.logger, c, err, "submit activity")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "activity submitted for review", review)
}

func (h *ReviewHandler) decide(c *fiber.Ctx) error {
	var payload dto.ReviewDecisionRequest
	if err := parseBody(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	review, err := h.service.Decide(c.UserContext(), actorFromContext(c), c.Params("id"), c.Params("reviewId"), payload)
	if err != nil {
		return fail(h.logger, c, err, "decide review")
	}

	return utils.SendSuccess(c, "review decided", review)
}

func (h *ReviewHandler) queue(c *fiber.Ctx) error {
	req, err := reviewerQueueRequest(c)
	if err != nil {
		return utils.SendAppError(c, err)
	}

	actor := actorFromContext(c)
	if req.Count {
		count, err := h.service.ReviewerQueueCount(c.UserContext(), actor, req)
		if err != nil {
			return fail(h.logger, c, err, "count reviewer queue")
		}
		return utils.SendSuccess(c, "review count retrieved", dto.ReviewCountResponse{Count: count})
	}

	reviews, err := h.service.ReviewerQueue(c.UserContext(), actor, req)
	if err != nil {
		return fail(h.logger, c, err, "list reviewer queue")
	}

	return utils.SendSuccess(c, "reviews retrieved", reviews)
}

func reviewerQueueRequest(c *fiber.Ctx) (dto.ReviewerQueueRequest, error) {
	var req dto.ReviewerQueueRequest
	var err error

	if req.Offset, err = parseQueryInt(c, "offset"); err != nil {
		return req, err
	}
	if req.Limit, err = parseQueryInt(c, "limit"); err != nil {
		return req, err
	}

	reviewType, err := parseOptionalInt(c, "type")
	if err != nil {
		return req, err
	}
	if reviewType != nil {
		value := models.ReviewType(*reviewType)
		req.Type = &value
	}

	state, err := parseOptionalInt(c, "state")
	if err != nil {
		return req, err
	}
	if state != nil {
		value := models.ReviewState(*state)
		req.State = &value
	}

	if raw := c.Query("count"); raw != "" {
		count, err := strconv.ParseBool(raw)
		if err != nil {
			return req, apperror.ErrValidation.Detail("invalid count")
		}
		req.Count = count
	}

	return req, nil
}
