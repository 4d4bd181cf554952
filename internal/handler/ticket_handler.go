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

// TicketHandler exposes ticket issuance and the student ticket view.
type TicketHandler struct {
	service service.TicketService
	logger  zerolog.Logger
}

// NewTicketHandler constructs the handler.
func NewTicketHandler(service service.TicketService, logger zerolog.Logger) *TicketHandler {
	return &TicketHandler{
		service: service,
		logger:  logger.With().Str("component", "ticket_handler").Logger(),
	}
}

// Register wires ticket routes below /activity. Literal segments are
// registered ahead of :ticketId.
func (h *TicketHandler) Register(router fiber.Router) {
	router.Get("/:id/ticket", h.list)
	router.Get("/:id/detail/:detailId/ticket", h.list)
	router.Put("/:id/ticket/new", h.issue)
	router.Put("/:id/detail/:detailId/ticket/new", h.issue)
	router.Put("/:id/ticket/import", h.importCSV)
	router.Put("/:id/ticket/:ticketId", h.update)
	router.Delete("/:id/ticket/:ticketId", h.delete)
}

// RegisterStudent wires the student facing ticket view below /user/student.
func (h *TicketHandler) RegisterStudent(router fiber.Router) {
	router.Get("/ticket", h.studentTickets)
}

func (h *TicketHandler) list(c *fiber.Ctx) error {
	tickets, err := h.service.List(c.UserContext(), c.Params("id"), c.Params("detailId"))
	if err != nil {
		return fail(h.logger, c, err, "list tickets")
	}

	return utils.SendSuccess(c, "tickets retrieved", tickets)
}

func (h *TicketHandler) issue(c *fiber.Ctx) error {
	var entries []dto.TicketEntry
	if err := parseBody(c, &entries); err != nil {
		return utils.SendAppError(c, err)
	}

	tickets, err := h.service.Issue(c.UserContext(), actorFromContext(c), c.Params("id"), c.Params("detailId"), entries)
	if err != nil {
		return fail(h.logger, c, err, "issue tickets")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "tickets issued", tickets)
}

func (h *TicketHandler) importCSV(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendAppError(c, apperror.ErrValidation.Detail("file is required"))
	}

	tickets, err := h.service.Import(c.UserContext(), actorFromContext(c), c.Params("id"), file)
	if err != nil {
		return fail(h.logger, c, err, "import tickets")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "tickets imported", tickets)
}

func (h *TicketHandler) update(c *fiber.Ctx) error {
	var payload dto.TicketUpdateRequest
	if err := parseBody(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	ticket, err := h.service.Update(c.UserContext(), actorFromContext(c), c.Params("id"), c.Params("ticketId"), payload)
	if err != nil {
		return fail(h.logger, c, err, "update ticket")
	}

	return utils.SendSuccess(c, "ticket updated", ticket)
}

func (h *TicketHandler) delete(c *fiber.Ctx) error {
	ticketID := c.Params("ticketId")
	if err := h.service.Delete(c.UserContext(), actorFromContext(c), c.Params("id"), ticketID); err != nil {
		return fail(h.logger, c, err, "delete ticket")
	}

	return utils.SendSuccess(c, "ticket deleted", fiber.Map{"id": ticketID})
}

func (h *TicketHandler) studentTickets(c *fiber.Ctx) error {
	query, err := studentTicketQuery(c)
	if err != nil {
		return utils.SendAppError(c, err)
	}

	tickets, err := h.service.StudentTickets(c.UserContext(), actorFromContext(c), query)
	if err != nil {
		return fail(h.logger, c, err, "list student tickets")
	}

	return utils.SendSuccess(c, "tickets retrieved", tickets)
}

func studentTicketQuery(c *fiber.Ctx) (dto.StudentTicketQuery, error) {
	start, err := parseOptionalDate(c, "startDate")
	if err != nil {
		return dto.StudentTicketQuery{}, err
	}
	end, err := parseOptionalDate(c, "endDate")
	if err != nil {
		return dto.StudentTicketQuery{}, err
	}
	ticketType, err := parseOptionalInt(c, "type")
	if err != nil {
		return dto.StudentTicketQuery{}, err
	}

	query := dto.StudentTicketQuery{Student: c.Query("student"), StartDate: start, EndDate: end}
	if ticketType != nil {
		value := models.TicketType(*ticketType)
		if !value.Valid() {
			return dto.StudentTicketQuery{}, apperror.ErrValidation.Detail("invalid type")
		}
		query.Type = &value
	}
	return query, nil
}
