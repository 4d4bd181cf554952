package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
	"github.com/noah-isme/activity-ticket-api/internal/workflow"
)

// DetailService manages the scoring categories of an activity.
type DetailService interface {
	Create(ctx context.Context, actor Actor, activityID string, payload dto.DetailCreateRequest) (dto.DetailResponse, error)
	List(ctx context.Context, activityID string) ([]dto.DetailResponse, error)
	Update(ctx context.Context, actor Actor, activityID, detailID string, payload dto.DetailUpdateRequest) (dto.DetailResponse, error)
	Delete(ctx context.Context, actor Actor, activityID, detailID string) error
}

type detailService struct {
	uow        repository.UnitOfWork
	activities repository.ActivityRepository
	details    repository.DetailRepository
	audit      AuditRecorder
	validator  *validator.Validate
	sanitizer  textSanitizer
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// NewDetailService constructs the detail service.
func NewDetailService(uow repository.UnitOfWork, activities repository.ActivityRepository, details repository.DetailRepository, audit AuditRecorder, validate *validator.Validate, logger zerolog.Logger) DetailService {
	return &detailService{
		uow:        uow,
		activities: activities,
		details:    details,
		audit:      audit,
		validator:  validate,
		sanitizer:  newTextSanitizer(),
		tracer:     otel.Tracer(tracerName + "/detail"),
		logger:     logger.With().Str("component", "detail_service").Logger(),
	}
}

// editableBy guards every detail mutation.
func editableBy(actor Actor, activity *models.Activity) error {
	if activity.Owner != actor.ID {
		return apperror.ErrNotOwner
	}
	if !workflow.Editable(activity.State) {
		return apperror.ErrNotEditable.Detail("details of an activity in state %s can not be modified", activity.State)
	}
	return nil
}

func (s *detailService) Create(ctx context.Context, actor Actor, activityID string, payload dto.DetailCreateRequest) (dto.DetailResponse, error) {
	ctx, span := s.tracer.Start(ctx, "detail.create", trace.WithAttributes(attribute.String("activity.id", activityID)))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		err = validationError(err)
		failSpan(span, err)
		return dto.DetailResponse{}, err
	}
	name := s.sanitizer.Plain(payload.Name)
	if name == "" {
		err := apperror.ErrValidation.Detail("name must not be empty")
		failSpan(span, err)
		return dto.DetailResponse{}, err
	}

	var created models.ActivityDetail
	err := withRetry(ctx, func() error {
		return s.uow.WithinActivity(ctx, activityID, func(ctx context.Context, repos repository.Repositories, activity *models.Activity) error {
			if err := editableBy(actor, activity); err != nil {
				return err
			}
			created = models.ActivityDetail{
				ActivityID: activity.ID,
				Name:       name,
				MaxPoints:  *payload.MaxPoints,
			}
			return repos.Details.Create(ctx, &created)
		})
	})
	if err != nil {
		failSpan(span, err)
		return dto.DetailResponse{}, denied(ctx, s.audit, actor, "activity", activityID, err)
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditDetailChanged,
		EntityType: "detail",
		EntityID:   created.ID,
		Metadata:   map[string]interface{}{"activity_id": activityID, "operation": "create", "max_points": created.MaxPoints},
	})
	return dto.NewDetailResponse(created), nil
}

func (s *detailService) List(ctx context.Context, activityID string) ([]dto.DetailResponse, error) {
	var details []models.ActivityDetail
	err := withRetry(ctx, func() error {
		if _, err := s.activities.GetByID(ctx, activityID); err != nil {
			return storageError(err, apperror.ErrActivityNotFound)
		}
		var err error
		details, err = s.details.ListByActivity(ctx, activityID)
		return storageError(err, nil)
	})
	if err != nil {
		return nil, err
	}
	return dto.NewDetailResponses(details), nil
}

func (s *detailService) Update(ctx context.Context, actor Actor, activityID, detailID string, payload dto.DetailUpdateRequest) (dto.DetailResponse, error) {
	ctx, span := s.tracer.Start(ctx, "detail.update", trace.WithAttributes(
		attribute.String("activity.id", activityID),
		attribute.String("detail.id", detailID),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		err = validationError(err)
		failSpan(span, err)
		return dto.DetailResponse{}, err
	}

	var updated models.ActivityDetail
	err := withRetry(ctx, func() error {
		return s.uow.WithinActivity(ctx, activityID, func(ctx context.Context, repos repository.Repositories, activity *models.Activity) error {
			if err := editableBy(actor, activity); err != nil {
				return err
			}
			detail, err := loadDetail(ctx, repos, activity.ID, detailID)
			if err != nil {
				return err
			}

			if payload.Name != nil {
				name := s.sanitizer.Plain(*payload.Name)
				if name == "" {
					return apperror.ErrValidation.Detail("name must not be empty")
				}
				detail.Name = name
			}
			if payload.MaxPoints != nil && *payload.MaxPoints < detail.MaxPoints {
				issued, err := repos.Details.MaxStudentTotal(ctx, detail.ID)
				if err != nil {
					return err
				}
				if issued > *payload.MaxPoints {
					return apperror.ErrPointsCeilingExceeded.Detail("a student already holds %d points on this detail", issued)
				}
			}
			if payload.MaxPoints != nil {
				detail.MaxPoints = *payload.MaxPoints
			}

			if err := repos.Details.Update(ctx, &detail); err != nil {
				return err
			}
			updated = detail
			return nil
		})
	})
	if err != nil {
		failSpan(span, err)
		return dto.DetailResponse{}, denied(ctx, s.audit, actor, "detail", detailID, err)
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditDetailChanged,
		EntityType: "detail",
		EntityID:   detailID,
		Metadata:   map[string]interface{}{"activity_id": activityID, "operation": "update", "max_points": updated.MaxPoints},
	})
	return dto.NewDetailResponse(updated), nil
}

func (s *detailService) Delete(ctx context.Context, actor Actor, activityID, detailID string) error {
	ctx, span := s.tracer.Start(ctx, "detail.delete", trace.WithAttributes(
		attribute.String("activity.id", activityID),
		attribute.String("detail.id", detailID),
	))
	defer span.End()

	err := withRetry(ctx, func() error {
		return s.uow.WithinActivity(ctx, activityID, func(ctx context.Context, repos repository.Repositories, activity *models.Activity) error {
			if err := editableBy(actor, activity); err != nil {
				return err
			}
			if _, err := loadDetail(ctx, repos, activity.ID, detailID); err != nil {
				return err
			}
			return repos.Details.SoftDelete(ctx, detailID)
		})
	})
	if err != nil {
		failSpan(span, err)
		return denied(ctx, s.audit, actor, "detail", detailID, err)
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditDetailChanged,
		EntityType: "detail",
		EntityID:   detailID,
		Metadata:   map[string]interface{}{"activity_id": activityID, "operation": "delete"},
	})
	return nil
}

// loadDetail fetches a detail and checks it belongs to activityID.
func loadDetail(ctx context.Context, repos repository.Repositories, activityID, detailID string) (models.ActivityDetail, error) {
	detail, err := repos.Details.GetByID(ctx, detailID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ActivityDetail{}, apperror.ErrDetailNotFound
	}
	if err != nil {
		return models.ActivityDetail{}, err
	}
	if detail.ActivityID != activityID {
		return models.ActivityDetail{}, apperror.ErrDetailMismatch
	}
	return detail, nil
}
