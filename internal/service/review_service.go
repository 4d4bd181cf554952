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
	"github.com/noah-isme/activity-ticket-api/internal/events"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/observability"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
	"github.com/noah-isme/activity-ticket-api/internal/workflow"
)

// ReviewService drives the two stage approval of activities and ticket
// batches.
type ReviewService interface {
	Submit(ctx context.Context, actor Actor, activityID string) (dto.ReviewResponse, error)
	Decide(ctx context.Context, actor Actor, activityID, reviewID string, payload dto.ReviewDecisionRequest) (dto.ReviewResponse, error)
	ListForActivity(ctx context.Context, activityID string) ([]dto.ReviewResponse, error)
	ReviewerQueue(ctx context.Context, actor Actor, req dto.ReviewerQueueRequest) ([]dto.ReviewResponse, error)
	ReviewerQueueCount(ctx context.Context, actor Actor, req dto.ReviewerQueueRequest) (int64, error)
}

type reviewService struct {
	uow        repository.UnitOfWork
	activities repository.ActivityRepository
	reviews    repository.ReviewRepository
	policy     workflow.Policy
	cache      ReviewCountCache
	publisher  events.Publisher
	audit      AuditRecorder
	validator  *validator.Validate
	sanitizer  textSanitizer
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// NewReviewService constructs the review service.
func NewReviewService(
	uow repository.UnitOfWork,
	activities repository.ActivityRepository,
	reviews repository.ReviewRepository,
	policy workflow.Policy,
	cache ReviewCountCache,
	publisher events.Publisher,
	audit AuditRecorder,
	validate *validator.Validate,
	logger zerolog.Logger,
) ReviewService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if cache == nil {
		cache = NewReviewCountCache(nil, 0, logger)
	}
	return &reviewService{
		uow:        uow,
		activities: activities,
		reviews:    reviews,
		policy:     policy,
		cache:      cache,
		publisher:  publisher,
		audit:      audit,
		validator:  validate,
		sanitizer:  newTextSanitizer(),
		tracer:     otel.Tracer(tracerName + "/review"),
		logger:     logger.With().Str("component", "review_service").Logger(),
	}
}

func (s *reviewService) Submit(ctx context.Context, actor Actor, activityID string) (dto.ReviewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "review.submit", trace.WithAttributes(
		attribute.String("activity.id", activityID),
		attribute.String("actor.id", actor.ID),
	))
	defer span.End()

	var (
		review   models.Review
		from, to models.ActivityState
	)
	err := withRetry(ctx, func() error {
		return s.uow.WithinActivity(ctx, activityID, func(ctx context.Context, repos repository.Repositories, activity *models.Activity) error {
			if activity.Owner != actor.ID {
				return apperror.ErrNotOwner
			}

			reviewType, err := s.policy.SubmissionType(activity.State)
			if err != nil {
				return err
			}
			next, err := s.policy.Submit(activity.State, reviewType)
			if err != nil {
				return err
			}
			if activity.Instructor == "" || activity.Committee == "" {
				return apperror.ErrReviewerUnassigned.Detail("activity needs both an instructor and a committee before review")
			}
			if err := checkReviewers(ctx, repos.Admins, activity.Owner, activity.Instructor, activity.Committee); err != nil {
				return err
			}

			if err := repos.Activities.UpdateState(ctx, activity.ID, activity.State, next); err != nil {
				return err
			}

			review = models.Review{
				ActivityID: activity.ID,
				Type:       reviewType,
				Owner:      activity.Owner,
				Instructor: activity.Instructor,
				Committee:  activity.Committee,
				State:      models.ReviewInstructorPending,
			}
			if err := repos.Reviews.Create(ctx, &review); err != nil {
				return err
			}

			from, to = activity.State, next
			return nil
		})
	})
	if err != nil {
		failSpan(span, err)
		return dto.ReviewResponse{}, denied(ctx, s.audit, actor, "activity", activityID, err)
	}

	observability.WorkflowTransitions().WithLabelValues("activity", from.String(), to.String()).Inc()
	s.cache.Invalidate(ctx, review.Instructor, review.Committee)
	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditActivitySubmitted,
		EntityType: "review",
		EntityID:   review.ID,
		Metadata:   map[string]interface{}{"activity_id": activityID, "type": review.Type.String()},
	})
	publishEvent(ctx, s.publisher, s.logger, events.ActivityStateChanged, events.ActivityStateChange{
		ActivityID: activityID,
		From:       from.String(),
		To:         to.String(),
		Actor:      actor.ID,
		ReviewID:   review.ID,
	})

	return dto.NewReviewResponse(review), nil
}

func (s *reviewService) Decide(ctx context.Context, actor Actor, activityID, reviewID string, payload dto.ReviewDecisionRequest) (dto.ReviewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "review.decide", trace.WithAttributes(
		attribute.String("activity.id", activityID),
		attribute.String("review.id", reviewID),
		attribute.String("actor.id", actor.ID),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		err = validationError(err)
		failSpan(span, err)
		return dto.ReviewResponse{}, err
	}

	decision := workflow.Reject
	if *payload.State {
		decision = workflow.Approve
	}
	comment := s.sanitizer.Plain(payload.Comment)

	var (
		review                   models.Review
		stage                    workflow.Stage
		previousReview           models.ReviewState
		activityFrom, activityTo models.ActivityState
		activityMoved            bool
	)
	err := withRetry(ctx, func() error {
		activityMoved = false
		return s.uow.WithinActivity(ctx, activityID, func(ctx context.Context, repos repository.Repositories, activity *models.Activity) error {
			var err error
			review, err = repos.Reviews.GetByID(ctx, reviewID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.ErrReviewNotFound
			}
			if err != nil {
				return err
			}
			if review.ActivityID != activity.ID {
				return apperror.ErrReviewNotFound
			}

			stage, err = workflow.StageFor(review, actor.ID)
			if err != nil {
				return err
			}
			next, err := workflow.Decide(review.State, stage, decision)
			if err != nil {
				return err
			}
			if activity.State != workflow.PendingStateFor(review.Type) {
				return apperror.ErrStateMismatch.Detail("activity is %s while its %s review is open", activity.State, review.Type)
			}

			previousReview = review.State
			review.State = next
			if stage == workflow.StageInstructor {
				review.InstructorComment = comment
			} else {
				review.CommitteeComment = comment
			}
			if err := repos.Reviews.Update(ctx, &review); err != nil {
				return err
			}

			outcome, ok := workflow.ActivityOutcome(review.Type, next)
			if !ok {
				return nil
			}
			to, err := s.policy.Conclude(activity.State, outcome)
			if err != nil {
				return err
			}
			if err := repos.Activities.UpdateState(ctx, activity.ID, activity.State, to); err != nil {
				return err
			}
			activityFrom, activityTo, activityMoved = activity.State, to, true
			return nil
		})
	})
	if err != nil {
		failSpan(span, err)
		return dto.ReviewResponse{}, denied(ctx, s.audit, actor, "review", reviewID, err)
	}

	observability.WorkflowTransitions().WithLabelValues("review", previousReview.String(), review.State.String()).Inc()
	s.cache.Invalidate(ctx, review.Instructor, review.Committee)
	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditReviewDecided,
		EntityType: "review",
		EntityID:   review.ID,
		Metadata: map[string]interface{}{
			"activity_id": activityID,
			"stage":       stage.String(),
			"decision":    decision.String(),
			"state":       review.State.String(),
		},
	})
	publishEvent(ctx, s.publisher, s.logger, events.ReviewDecided, events.ReviewDecision{
		ReviewID:   review.ID,
		ActivityID: activityID,
		ReviewType: review.Type.String(),
		Stage:      stage.String(),
		Decision:   decision.String(),
		State:      review.State.String(),
		Actor:      actor.ID,
	})
	if activityMoved {
		observability.WorkflowTransitions().WithLabelValues("activity", activityFrom.String(), activityTo.String()).Inc()
		publishEvent(ctx, s.publisher, s.logger, events.ActivityStateChanged, events.ActivityStateChange{
			ActivityID: activityID,
			From:       activityFrom.String(),
			To:         activityTo.String(),
			Actor:      actor.ID,
			ReviewID:   review.ID,
		})
	}

	return dto.NewReviewResponse(review), nil
}

func (s *reviewService) ListForActivity(ctx context.Context, activityID string) ([]dto.ReviewResponse, error) {
	var reviews []models.Review
	err := withRetry(ctx, func() error {
		if _, err := s.activities.GetByID(ctx, activityID); err != nil {
			return storageError(err, apperror.ErrActivityNotFound)
		}
		var err error
		reviews, err = s.reviews.ListByActivity(ctx, activityID)
		return storageError(err, nil)
	})
	if err != nil {
		return nil, err
	}
	return dto.NewReviewResponses(reviews), nil
}

func (s *reviewService) reviewerFilter(actor Actor, req dto.ReviewerQueueRequest) (repository.ReviewerFilter, error) {
	if !actor.IsAdmin() {
		return repository.ReviewerFilter{}, apperror.ErrForbidden.Detail("only reviewers have a review queue")
	}
	if req.Type != nil && !req.Type.Valid() {
		return repository.ReviewerFilter{}, apperror.ErrValidation.Detail("unknown review type %d", *req.Type)
	}
	if req.State != nil && !req.State.Valid() {
		return repository.ReviewerFilter{}, apperror.ErrValidation.Detail("unknown review state %d", *req.State)
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

	return repository.ReviewerFilter{
		Reviewer: actor.ID,
		Type:     req.Type,
		State:    req.State,
		Offset:   offset,
		Limit:    limit,
	}, nil
}

func (s *reviewService) ReviewerQueue(ctx context.Context, actor Actor, req dto.ReviewerQueueRequest) ([]dto.ReviewResponse, error) {
	filter, err := s.reviewerFilter(actor, req)
	if err != nil {
		return nil, denied(ctx, s.audit, actor, "review", "", err)
	}

	var reviews []models.Review
	err = withRetry(ctx, func() error {
		var err error
		reviews, err = s.reviews.ListForReviewer(ctx, filter)
		return storageError(err, nil)
	})
	if err != nil {
		return nil, err
	}
	return dto.NewReviewResponses(reviews), nil
}

func (s *reviewService) ReviewerQueueCount(ctx context.Context, actor Actor, req dto.ReviewerQueueRequest) (int64, error) {
	filter, err := s.reviewerFilter(actor, req)
	if err != nil {
		return 0, denied(ctx, s.audit, actor, "review", "", err)
	}

	if count, ok := s.cache.Get(ctx, filter); ok {
		return count, nil
	}

	var count int64
	err = withRetry(ctx, func() error {
		var err error
		count, err = s.reviews.CountForReviewer(ctx, filter)
		return storageError(err, nil)
	})
	if err != nil {
		return 0, err
	}

	s.cache.Set(ctx, filter, count)
	return count, nil
}
