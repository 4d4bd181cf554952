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

// UserHandler exposes admin management, student import and the current
// user's profile.
type UserHandler struct {
	admins   service.AdminService
	students service.StudentService
	logger   zerolog.Logger
}

// NewUserHandler constructs the handler.
func NewUserHandler(admins service.AdminService, students service.StudentService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{
		admins:   admins,
		students: students,
		logger:   logger.With().Str("component", "user_handler").Logger(),
	}
}

// RegisterAdmin wires routes below /user/admin.
func (h *UserHandler) RegisterAdmin(router fiber.Router) {
	router.Get("", h.listAdmins)
	router.Put("/new", h.createAdmin)
	router.Put("/update/:id", h.updateAdmin)
	router.Get("/:id", h.getAdmin)
	router.Delete("/:id", h.deleteAdmin)
}

// Me handles GET /user/me.
func (h *UserHandler) Me(c *fiber.Ctx) error {
	user, err := h.admins.Profile(c.UserContext(), actorFromContext(c))
	if err != nil {
		return fail(h.logger, c, err, "load profile")
	}

	return utils.SendSuccess(c, "profile retrieved", user)
}

// ImportStudents handles PUT /user/student/import.
func (h *UserHandler) ImportStudents(c *fiber.Ctx) error {
	var payload dto.StudentImportRequest
	if err := parseBody(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	result, err := h.students.Import(c.UserContext(), actorFromContext(c), payload)
	if err != nil {
		return fail(h.logger, c, err, "import students")
	}

	return utils.SendSuccess(c, "students imported", result)
}

func (h *UserHandler) listAdmins(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendAppError(c, err)
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendAppError(c, err)
	}
	userType, err := parseOptionalInt(c, "type")
	if err != nil {
		return utils.SendAppError(c, err)
	}

	req := dto.AdminListRequest{Limit: limit, Offset: offset}
	if userType != nil {
		value := models.UserType(*userType)
		if !value.IsAdmin() {
			return utils.SendAppError(c, apperror.ErrValidation.Detail("invalid type"))
		}
		req.Type = &value
	}

	admins, meta, err := h.admins.List(c.UserContext(), req)
	if err != nil {
		return fail(h.logger, c, err, "list admins")
	}

	return utils.SendSuccessWithMeta(c, "admins retrieved", admins, meta)
}

func (h *UserHandler) getAdmin(c *fiber.Ctx) error {
	admin, err := h.admins.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(h.logger, c, err, "fetch admin")
	}

	return utils.SendSuccess(c, "admin retrieved", admin)
}

func (h *UserHandler) createAdmin(c *fiber.Ctx) error {
	var payload dto.AdminCreateRequest
	if err := parseBody(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	admin, err := h.admins.Create(c.UserContext(), actorFromContext(c), payload)
	if err != nil {
		return fail(h.logger, c, err, "create admin")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "admin created", admin)
}

func (h *UserHandler) updateAdmin(c *fiber.Ctx) error {
	var payload dto.AdminUpdateRequest
	if err := parseBody(c, &payload); err != nil {
		return utils.SendAppError(c, err)
	}

	admin, err := h.admins.Update(c.UserContext(), actorFromContext(c), c.Params("id"), payload)
	if err != nil {
		return fail(h.logger, c, err, "update admin")
	}

	return utils.SendSuccess(c, "admin updated", admin)
}

func (h *UserHandler) deleteAdmin(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.admins.Delete(c.UserContext(), actorFromContext(c), id); err != nil {
		return fail(h.logger, c, err, "delete admin")
	}

	return utils.SendSuccess(c, "admin deleted", fiber.Map{"id": id})
}
