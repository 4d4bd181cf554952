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
	"github.com/noah-isme/activity-ticket-api/internal/repository"
)

// StudentService imports the student directory.
type StudentService interface {
	Import(ctx context.Context, actor Actor, payload dto.StudentImportRequest) (dto.StudentImportResult, error)
}

type studentService struct {
	uow       repository.UnitOfWork
	audit     AuditRecorder
	validator *validator.Validate
	sanitizer textSanitizer
	logger    zerolog.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(uow repository.UnitOfWork, audit AuditRecorder, validate *validator.Validate, logger zerolog.Logger) StudentService {
	return &studentService{
		uow:       uow,
		audit:     audit,
		validator: validate,
		sanitizer: newTextSanitizer(),
		logger:    logger.With().Str("component", "student_service").Logger(),
	}
}

func (s *studentService) Import(ctx context.Context, actor Actor, payload dto.StudentImportRequest) (dto.StudentImportResult, error) {
	if !actor.IsSU() {
		return dto.StudentImportResult{}, denied(ctx, s.audit, actor, "student", "", apperror.ErrForbidden.Detail("only super users may import students"))
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentImportResult{}, validationError(err)
	}

	batch := repository.StudentImport{
		Schools:  make([]string, 0, len(payload.Schools)),
		Classes:  make([]repository.ClassImport, 0, len(payload.Classes)),
		Students: make([]repository.StudentRow, 0, len(payload.Students)),
	}
	for _, school := range payload.Schools {
		batch.Schools = append(batch.Schools, s.sanitizer.Plain(school.Name))
	}
	for _, class := range payload.Classes {
		batch.Classes = append(batch.Classes, repository.ClassImport{
			Name:   s.sanitizer.Plain(class.Name),
			School: s.sanitizer.Plain(class.School),
		})
	}
	for _, student := range payload.Students {
		batch.Students = append(batch.Students, repository.StudentRow{
			ID:    strings.TrimSpace(student.ID),
			Name:  s.sanitizer.Plain(student.Name),
			Class: s.sanitizer.Plain(student.Class),
		})
	}

	err := withRetry(ctx, func() error {
		err := s.uow.Within(ctx, func(ctx context.Context, repos repository.Repositories) error {
			return repos.Students.Import(ctx, batch)
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrValidation.Detail("%v", err)
		}
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("student import failed")
		return dto.StudentImportResult{}, err
	}

	result := dto.StudentImportResult{
		Schools:  len(batch.Schools),
		Classes:  len(batch.Classes),
		Students: len(batch.Students),
	}
	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditStudentsImported,
		EntityType: "student",
		Metadata: map[string]interface{}{
			"schools":  result.Schools,
			"classes":  result.Classes,
			"students": result.Students,
		},
	})
	return result, nil
}
