package service

import (
	"context"
	"errors"
	"strings"

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

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ActivityService manages activities outside of the review workflow.
type ActivityService interface {
	Create(ctx context.Context, actor Actor, payload dto.ActivityCreateRequest) (dto.ActivityResponse, error)
	Get(ctx context.Context, id string) (dto.ActivityResponse, error)
	List(ctx context.Context, req dto.ActivityListRequest) ([]dto.ActivityResponse, dto.ListMeta, error)
	Update(ctx context.Context, actor Actor, id string, payload dto.ActivityUpdateRequest) (dto.ActivityResponse, error)
	Delete(ctx context.Context, actor Actor, id string) error
}

type activityService struct {
	uow        repository.UnitOfWork
	activities repository.ActivityRepository
	admins     repository.AdminRepository
	cache      ReviewCountCache
	audit      AuditRecorder
	validator  *validator.Validate
	sanitizer  textSanitizer
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// NewActivityService constructs the activity service. cache is the reviewer
// queue counter that deletions must invalidate.
func NewActivityService(uow repository.UnitOfWork, activities repository.ActivityRepository, admins repository.AdminRepository, cache ReviewCountCache, audit AuditRecorder, validate *validator.Validate, logger zerolog.Logger) ActivityService {
	if cache == nil {
		cache = NewReviewCountCache(nil, 0, logger)
	}
	return &activityService{
		uow:        uow,
		activities: activities,
		admins:     admins,
		cache:      cache,
		audit:      audit,
		validator:  validate,
		sanitizer:  newTextSanitizer(),
		tracer:     otel.Tracer(tracerName + "/activity"),
		logger:     logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Create(ctx context.Context, actor Actor, payload dto.ActivityCreateRequest) (dto.ActivityResponse, error) {
	ctx, span := s.tracer.Start(ctx, "activity.create", trace.WithAttributes(attribute.String("actor.id", actor.ID)))
	defer span.End()

	if !actor.IsAdmin() {
		err := apperror.ErrForbidden.Detail("only administrative accounts may create activities")
		failSpan(span, err)
		return dto.ActivityResponse{}, denied(ctx, s.audit, actor, "activity", "", err)
	}
	if err := s.validator.Struct(payload); err != nil {
		err = validationError(err)
		failSpan(span, err)
		return dto.ActivityResponse{}, err
	}

	date, err := dto.ParseDate(payload.Date)
	if err != nil {
		err = apperror.ErrValidation.Detail("date: %v", err)
		failSpan(span, err)
		return dto.ActivityResponse{}, err
	}

	activity := models.Activity{
		Name:        s.sanitizer.Plain(payload.Name),
		Description: s.sanitizer.Rich(payload.Description),
		Location:    s.sanitizer.Plain(payload.Location),
		Date:        date,
		Owner:       actor.ID,
		State:       models.ActivityDraft,
	}
	if activity.Name == "" {
		err := apperror.ErrValidation.Detail("name must not be empty")
		failSpan(span, err)
		return dto.ActivityResponse{}, err
	}

	owner, err := s.admins.GetByID(ctx, actor.ID)
	switch {
	case err == nil:
		activity.Instructor = owner.Instructor
		activity.Committee = owner.Committee
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		err = storageError(err, nil)
		failSpan(span, err)
		return dto.ActivityResponse{}, err
	}
	if err := assignReviewers(ctx, s.admins, actor, &activity, payload.Instructor, payload.Committee); err != nil {
		failSpan(span, err)
		return dto.ActivityResponse{}, denied(ctx, s.audit, actor, "activity", "", err)
	}

	err = withRetry(ctx, func() error {
		activity.ID = ""
		return s.activities.Create(ctx, &activity)
	})
	if err != nil {
		failSpan(span, err)
		s.logger.Error().Err(err).Msg("failed to create activity")
		return dto.ActivityResponse{}, err
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditActivityCreated,
		EntityType: "activity",
		EntityID:   activity.ID,
		Metadata:   map[string]interface{}{"name": activity.Name},
	})
	span.SetAttributes(attribute.String("activity.id", activity.ID))

	return dto.NewActivityResponse(activity), nil
}

func (s *activityService) Get(ctx context.Context, id string) (dto.ActivityResponse, error) {
	var activity models.Activity
	err := withRetry(ctx, func() error {
		var err error
		activity, err = s.activities.GetByID(ctx, id)
		return storageError(err, apperror.ErrActivityNotFound)
	})
	if err != nil {
		return dto.ActivityResponse{}, err
	}
	return dto.NewActivityResponse(activity), nil
}

func (s *activityService) List(ctx context.Context, req dto.ActivityListRequest) ([]dto.ActivityResponse, dto.ListMeta, error) {
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
	if req.State != nil && !req.State.Valid() {
		return nil, dto.ListMeta{}, apperror.ErrValidation.Detail("unknown activity state %d", *req.State)
	}

	var (
		activities []models.Activity
		total      int64
	)
	err := withRetry(ctx, func() error {
		var err error
		activities, total, err = s.activities.List(ctx, repository.ActivityFilter{
			Limit:  limit,
			Offset: offset,
			State:  req.State,
			Owner:  strings.TrimSpace(req.Owner),
		})
		return storageError(err, nil)
	})
	if err != nil {
		return nil, dto.ListMeta{}, err
	}

	return dto.NewActivityResponses(activities), dto.ListMeta{Total: total, Limit: limit, Offset: offset}, nil
}

func (s *activityService) Update(ctx context.Context, actor Actor, id string, payload dto.ActivityUpdateRequest) (dto.ActivityResponse, error) {
	ctx, span := s.tracer.Start(ctx, "activity.update", trace.WithAttributes(
		attribute.String("activity.id", id),
		attribute.String("actor.id", actor.ID),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		err = validationError(err)
		failSpan(span, err)
		return dto.ActivityResponse{}, err
	}

	var updated models.Activity
	err := withRetry(ctx, func() error {
		return s.uow.WithinActivity(ctx, id, func(ctx context.Context, repos repository.Repositories, activity *models.Activity) error {
			if activity.Owner != actor.ID && !actor.IsSU() {
				return apperror.ErrNotOwner
			}
			if !workflow.Editable(activity.State) {
				return apperror.ErrNotEditable.Detail("activity in state %s can not be modified", activity.State)
			}
			if err := s.apply(activity, payload); err != nil {
				return err
			}
			if err := assignReviewers(ctx, repos.Admins, actor, activity, payload.Instructor, payload.Committee); err != nil {
				return err
			}
			if err := repos.Activities.Update(ctx, activity); err != nil {
				return err
			}
			updated = *activity
			return nil
		})
	})
	if err != nil {
		failSpan(span, err)
		return dto.ActivityResponse{}, denied(ctx, s.audit, actor, "activity", id, err)
	}

	s.audit.Record(ctx, AuditEntry{Actor: actor, Action: AuditActivityUpdated, EntityType: "activity", EntityID: id})
	return dto.NewActivityResponse(updated), nil
}

func (s *activityService) apply(activity *models.Activity, payload dto.ActivityUpdateRequest) error {
	if payload.Name != nil {
		name := s.sanitizer.Plain(*payload.Name)
		if name == "" {
			return apperror.ErrValidation.Detail("name must not be empty")
		}
		activity.Name = name
	}
	if payload.Description != nil {
		activity.Description = s.sanitizer.Rich(*payload.Description)
	}
	if payload.Location != nil {
		activity.Location = s.sanitizer.Plain(*payload.Location)
	}
	if payload.Date != nil {
		date, err := dto.ParseDate(*payload.Date)
		if err != nil {
			return apperror.ErrValidation.Detail("date: %v", err)
		}
		activity.Date = date
	}
	return nil
}

func (s *activityService) Delete(ctx context.Context, actor Actor, id string) error {
	ctx, span := s.tracer.Start(ctx, "activity.delete", trace.WithAttributes(
		attribute.String("activity.id", id),
		attribute.String("actor.id", actor.ID),
	))
	defer span.End()

	var (
		previous  models.ActivityState
		reviewers []string
	)
	err := withRetry(ctx, func() error {
		return s.uow.WithinActivity(ctx, id, func(ctx context.Context, repos repository.Repositories, activity *models.Activity) error {
			if !actor.IsSU() {
				if activity.Owner != actor.ID {
					return apperror.ErrNotOwner
				}
				if !workflow.Editable(activity.State) {
					return apperror.ErrNotEditable.Detail("activity in state %s can not be deleted", activity.State)
				}
			}
			reviews, err := repos.Reviews.ListByActivity(ctx, activity.ID)
			if err != nil {
				return err
			}
			reviewers = reviewers[:0]
			for _, review := range reviews {
				if !review.State.Decided() {
					reviewers = append(reviewers, review.Instructor, review.Committee)
				}
			}
			previous = activity.State
			return repos.Activities.SoftDelete(ctx, activity.ID)
		})
	})
	if err != nil {
		failSpan(span, err)
		return denied(ctx, s.audit, actor, "activity", id, err)
	}

	s.cache.Invalidate(ctx, reviewers...)
	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditActivityDeleted,
		EntityType: "activity",
		EntityID:   id,
		Metadata:   map[string]interface{}{"state": previous.String()},
	})
	return nil
}

// denied writes authorization failures to the audit trail and returns err
// unchanged. It must run outside of any open transaction.
func denied(ctx context.Context, audit AuditRecorder, actor Actor, entityType, entityID string, err error) error {
	if apperror.KindOf(err) != apperror.KindAuthorization || audit == nil {
		return err
	}
	audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditAccessDenied,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   map[string]interface{}{"reason": apperror.CodeOf(err)},
	})
	return err
}
