package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
)

// AdminService manages administrative accounts.
type AdminService interface {
	List(ctx context.Context, req dto.AdminListRequest) ([]dto.AdminResponse, dto.ListMeta, error)
	Get(ctx context.Context, id string) (dto.AdminResponse, error)
	Profile(ctx context.Context, actor Actor) (dto.User, error)
	Create(ctx context.Context, actor Actor, payload dto.AdminCreateRequest) (dto.AdminResponse, error)
	Update(ctx context.Context, actor Actor, id string, payload dto.AdminUpdateRequest) (dto.AdminResponse, error)
	Delete(ctx context.Context, actor Actor, id string) error
	EnsureAdmin(ctx context.Context, payload dto.AdminCreateRequest) (dto.AdminResponse, bool, error)
	ImportLegacy(ctx context.Context, legacy []dto.LegacyAdmin) (int, error)
}

type adminService struct {
	uow       repository.UnitOfWork
	admins    repository.AdminRepository
	students  repository.StudentRepository
	audit     AuditRecorder
	validator *validator.Validate
	sanitizer textSanitizer
	logger    zerolog.Logger
}

// NewAdminService constructs the admin service.
func NewAdminService(uow repository.UnitOfWork, admins repository.AdminRepository, students repository.StudentRepository, audit AuditRecorder, validate *validator.Validate, logger zerolog.Logger) AdminService {
	return &adminService{
		uow:       uow,
		admins:    admins,
		students:  students,
		audit:     audit,
		validator: validate,
		sanitizer: newTextSanitizer(),
		logger:    logger.With().Str("component", "admin_service").Logger(),
	}
}

func (s *adminService) List(ctx context.Context, req dto.AdminListRequest) ([]dto.AdminResponse, dto.ListMeta, error) {
	if req.Type != nil && !req.Type.IsAdmin() {
		return nil, dto.ListMeta{}, apperror.ErrValidation.Detail("unknown admin type %d", *req.Type)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		admins []models.Admin
		total  int64
	)
	err := withRetry(ctx, func() error {
		var err error
		admins, total, err = s.admins.List(ctx, repository.AdminFilter{Type: req.Type, Limit: limit, Offset: offset})
		return storageError(err, nil)
	})
	if err != nil {
		return nil, dto.ListMeta{}, err
	}

	result := make([]dto.AdminResponse, 0, len(admins))
	for _, admin := range admins {
		result = append(result, dto.NewAdminResponse(admin))
	}
	return result, dto.ListMeta{Total: total, Limit: limit, Offset: offset}, nil
}

func (s *adminService) Get(ctx context.Context, id string) (dto.AdminResponse, error) {
	var admin models.Admin
	err := withRetry(ctx, func() error {
		var err error
		admin, err = s.admins.GetByID(ctx, id)
		return storageError(err, apperror.ErrUserNotFound)
	})
	if err != nil {
		return dto.AdminResponse{}, err
	}
	return dto.NewAdminResponse(admin), nil
}

// Profile returns the account behind actor as a tagged user.
func (s *adminService) Profile(ctx context.Context, actor Actor) (dto.User, error) {
	if actor.IsStudent() {
		var student models.Student
		err := withRetry(ctx, func() error {
			var err error
			student, err = s.students.GetByID(ctx, actor.ID)
			return storageError(err, apperror.ErrUserNotFound)
		})
		if err != nil {
			return dto.User{}, err
		}
		return dto.NewStudentUser(student), nil
	}

	var admin models.Admin
	err := withRetry(ctx, func() error {
		var err error
		admin, err = s.admins.GetByID(ctx, actor.ID)
		return storageError(err, apperror.ErrUserNotFound)
	})
	if err != nil {
		return dto.User{}, err
	}
	return dto.NewAdminUser(admin), nil
}

func (s *adminService) Create(ctx context.Context, actor Actor, payload dto.AdminCreateRequest) (dto.AdminResponse, error) {
	if !actor.IsSU() {
		return dto.AdminResponse{}, denied(ctx, s.audit, actor, "admin", "", apperror.ErrForbidden.Detail("only super users may create admins"))
	}
	admin, err := s.newAdmin(payload)
	if err != nil {
		return dto.AdminResponse{}, err
	}

	err = withRetry(ctx, func() error {
		return storageError(s.admins.Create(ctx, &admin), nil)
	})
	if err != nil {
		if errors.Is(err, apperror.ErrDuplicate) {
			return dto.AdminResponse{}, apperror.ErrDuplicate.Detail("an admin with this id or name already exists")
		}
		return dto.AdminResponse{}, err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditAdminChanged,
		EntityType: "admin",
		EntityID:   admin.ID,
		Metadata:   map[string]interface{}{"operation": "create", "type": admin.Type.String()},
	})
	return dto.NewAdminResponse(admin), nil
}

func (s *adminService) newAdmin(payload dto.AdminCreateRequest) (models.Admin, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Admin{}, validationError(err)
	}
	hash, err := HashPassword(payload.Password)
	if err != nil {
		return models.Admin{}, err
	}

	admin := models.Admin{
		ID:           strings.TrimSpace(payload.ID),
		Name:         s.sanitizer.Plain(payload.Name),
		Type:         payload.Type,
		Description:  s.sanitizer.Plain(payload.Description),
		Instructor:   strings.TrimSpace(payload.Instructor),
		Committee:    strings.TrimSpace(payload.Committee),
		PasswordHash: hash,
	}
	if admin.ID == "" || admin.Name == "" {
		return models.Admin{}, apperror.ErrValidation.Detail("id and name must not be empty")
	}
	return admin, nil
}

func (s *adminService) Update(ctx context.Context, actor Actor, id string, payload dto.AdminUpdateRequest) (dto.AdminResponse, error) {
	if actor.ID != id && !actor.IsSU() {
		return dto.AdminResponse{}, denied(ctx, s.audit, actor, "admin", id, apperror.ErrForbidden.Detail("admins may only update their own account"))
	}
	if !actor.IsSU() && (payload.Type != nil || payload.Instructor != nil || payload.Committee != nil) {
		return dto.AdminResponse{}, denied(ctx, s.audit, actor, "admin", id, apperror.ErrForbidden.Detail("only super users may change type or reviewers"))
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.AdminResponse{}, validationError(err)
	}

	var updated models.Admin
	err := withRetry(ctx, func() error {
		return s.uow.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
			admin, err := repos.Admins.GetByID(ctx, id)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.ErrUserNotFound
			}
			if err != nil {
				return err
			}

			if payload.Name != nil {
				name := s.sanitizer.Plain(*payload.Name)
				if name == "" {
					return apperror.ErrValidation.Detail("name must not be empty")
				}
				admin.Name = name
			}
			if payload.Type != nil {
				admin.Type = *payload.Type
			}
			if payload.Description != nil {
				admin.Description = s.sanitizer.Plain(*payload.Description)
			}
			if payload.Instructor != nil {
				admin.Instructor = strings.TrimSpace(*payload.Instructor)
			}
			if payload.Committee != nil {
				admin.Committee = strings.TrimSpace(*payload.Committee)
			}
			if payload.Password != nil {
				hash, err := HashPassword(*payload.Password)
				if err != nil {
					return err
				}
				admin.PasswordHash = hash
			}

			if err := repos.Admins.Update(ctx, &admin); err != nil {
				return err
			}
			updated = admin
			return nil
		})
	})
	if err != nil {
		return dto.AdminResponse{}, err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditAdminChanged,
		EntityType: "admin",
		EntityID:   id,
		Metadata:   map[string]interface{}{"operation": "update", "password_changed": payload.Password != nil},
	})
	return dto.NewAdminResponse(updated), nil
}

func (s *adminService) Delete(ctx context.Context, actor Actor, id string) error {
	if !actor.IsSU() {
		return denied(ctx, s.audit, actor, "admin", id, apperror.ErrForbidden.Detail("only super users may delete admins"))
	}
	if actor.ID == id {
		return apperror.ErrValidation.Detail("super users can not delete their own account")
	}

	err := withRetry(ctx, func() error {
		return storageError(s.admins.SoftDelete(ctx, id), apperror.ErrUserNotFound)
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditAdminChanged,
		EntityType: "admin",
		EntityID:   id,
		Metadata:   map[string]interface{}{"operation": "delete"},
	})
	return nil
}

// EnsureAdmin creates the account or resets an existing one with the same
// id. It bypasses authorization and serves operator tooling.
func (s *adminService) EnsureAdmin(ctx context.Context, payload dto.AdminCreateRequest) (dto.AdminResponse, bool, error) {
	admin, err := s.newAdmin(payload)
	if err != nil {
		return dto.AdminResponse{}, false, err
	}

	created := false
	err = s.uow.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
		existing, err := repos.Admins.GetByID(ctx, admin.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created = true
			return repos.Admins.Create(ctx, &admin)
		}
		if err != nil {
			return err
		}

		existing.Name = admin.Name
		existing.Type = admin.Type
		existing.Description = admin.Description
		existing.Instructor = admin.Instructor
		existing.Committee = admin.Committee
		existing.PasswordHash = admin.PasswordHash
		if err := repos.Admins.Update(ctx, &existing); err != nil {
			return err
		}
		admin = existing
		return nil
	})
	if err != nil {
		return dto.AdminResponse{}, false, err
	}

	s.logger.Info().Str("admin_id", admin.ID).Bool("created", created).Msg("admin account ensured")
	return dto.NewAdminResponse(admin), created, nil
}

// ImportLegacy upgrades and stores admins exported from the previous system.
// Existing ids are left untouched.
func (s *adminService) ImportLegacy(ctx context.Context, legacy []dto.LegacyAdmin) (int, error) {
	imported := 0
	err := s.uow.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
		for _, record := range legacy {
			admin, err := dto.UpgradeLegacyAdmin(record)
			if err != nil {
				return apperror.ErrValidation.Detail("%v", err)
			}

			_, err = repos.Admins.GetByID(ctx, admin.ID)
			if err == nil {
				s.logger.Info().Str("admin_id", admin.ID).Msg("legacy admin already present, skipping")
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err := repos.Admins.Create(ctx, &admin); err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}
