package service

import (
	"context"
	"errors"
	"math"
	"mime/multipart"
	"sort"
	"strings"
	"time"

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

// TicketService issues tickets and keeps every student under the points
// ceiling of each detail.
type TicketService interface {
	Issue(ctx context.Context, actor Actor, activityID, detailID string, entries []dto.TicketEntry) ([]dto.TicketResponse, error)
	Import(ctx context.Context, actor Actor, activityID string, file *multipart.FileHeader) ([]dto.TicketResponse, error)
	Update(ctx context.Context, actor Actor, activityID, ticketID string, payload dto.TicketUpdateRequest) (dto.TicketResponse, error)
	Delete(ctx context.Context, actor Actor, activityID, ticketID string) error
	List(ctx context.Context, activityID, detailID string) ([]dto.TicketResponse, error)
	StudentTickets(ctx context.Context, actor Actor, query dto.StudentTicketQuery) ([]dto.TicketResponse, error)
}

type ticketService struct {
	uow            repository.UnitOfWork
	activities     repository.ActivityRepository
	details        repository.DetailRepository
	tickets        repository.TicketRepository
	policy         workflow.Policy
	publisher      events.Publisher
	audit          AuditRecorder
	validator      *validator.Validate
	importMaxBytes int64
	tracer         trace.Tracer
	logger         zerolog.Logger
}

// NewTicketService constructs the ticket service.
func NewTicketService(
	uow repository.UnitOfWork,
	activities repository.ActivityRepository,
	details repository.DetailRepository,
	tickets repository.TicketRepository,
	policy workflow.Policy,
	publisher events.Publisher,
	audit AuditRecorder,
	validate *validator.Validate,
	importMaxBytes int64,
	logger zerolog.Logger,
) TicketService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &ticketService{
		uow:            uow,
		activities:     activities,
		details:        details,
		tickets:        tickets,
		policy:         policy,
		publisher:      publisher,
		audit:          audit,
		validator:      validate,
		importMaxBytes: importMaxBytes,
		tracer:         otel.Tracer(tracerName + "/ticket"),
		logger:         logger.With().Str("component", "ticket_service").Logger(),
	}
}

// issuableBy guards every ticket mutation.
func (s *ticketService) issuableBy(actor Actor, activity *models.Activity) error {
	if activity.Owner != actor.ID && !actor.IsSU() {
		return apperror.ErrNotOwner
	}
	if !s.policy.IssuanceOpen(activity.State) {
		return apperror.ErrIssuanceClosed.Detail("activity in state %s does not accept tickets", activity.State)
	}
	return nil
}

func (s *ticketService) Issue(ctx context.Context, actor Actor, activityID, detailID string, entries []dto.TicketEntry) ([]dto.TicketResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ticket.issue", trace.WithAttributes(
		attribute.String("activity.id", activityID),
		attribute.Int("batch.size", len(entries)),
	))
	defer span.End()

	if err := s.validateEntries(entries); err != nil {
		s.rejectBatch(span, err)
		return nil, err
	}

	var created []models.Ticket
	err := withRetry(ctx, func() error {
		return s.uow.WithinActivity(ctx, activityID, func(ctx context.Context, repos repository.Repositories, activity *models.Activity) error {
			if err := s.issuableBy(actor, activity); err != nil {
				return err
			}

			batch := make([]models.Ticket, 0, len(entries))
			for i, entry := range entries {
				entry.Student = strings.TrimSpace(entry.Student)
				ticket, err := entry.Ticket(*activity, detailID)
				if err != nil {
					return apperror.ErrValidation.Detail("entry %d: %v", i, err)
				}
				if ticket.DetailID == "" {
					return apperror.ErrValidation.Detail("entry %d: detailId is required", i)
				}
				batch = append(batch, ticket)
			}

			if err := checkBatch(ctx, repos, activity.ID, batch); err != nil {
				return err
			}
			if err := repos.Tickets.CreateBatch(ctx, batch); err != nil {
				return err
			}
			created = batch
			return nil
		})
	})
	if err != nil {
		s.rejectBatch(span, err)
		return nil, denied(ctx, s.audit, actor, "activity", activityID, err)
	}

	ids := make([]string, 0, len(created))
	points := 0
	for _, ticket := range created {
		ids = append(ids, ticket.ID)
		points += ticket.Points
	}

	observability.TicketsIssued().Add(float64(len(created)))
	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditTicketsIssued,
		EntityType: "activity",
		EntityID:   activityID,
		Metadata:   map[string]interface{}{"count": len(created), "points": points},
	})
	publishEvent(ctx, s.publisher, s.logger, events.TicketsIssued, events.TicketBatch{
		ActivityID: activityID,
		TicketIDs:  ids,
		Points:     points,
		Actor:      actor.ID,
	})

	return dto.NewTicketResponses(created), nil
}

func (s *ticketService) validateEntries(entries []dto.TicketEntry) error {
	if len(entries) == 0 {
		return apperror.ErrValidation.Detail("ticket batch must not be empty")
	}
	for i, entry := range entries {
		if err := s.validator.Struct(entry); err != nil {
			verr := validationError(err)
			return apperror.ErrValidation.Detail("entry %d: %s", i, apperror.MessageOf(verr))
		}
	}
	return nil
}

func (s *ticketService) rejectBatch(span trace.Span, err error) {
	failSpan(span, err)
	switch apperror.KindOf(err) {
	case apperror.KindValidation, apperror.KindNotFound:
		observability.TicketBatchesRejected().WithLabelValues(apperror.CodeOf(err)).Inc()
	}
}

type ceilingKey struct {
	detail  string
	student string
}

// checkBatch verifies every ticket of batch against its detail and the
// running per student totals. The batch is all or nothing.
func checkBatch(ctx context.Context, repos repository.Repositories, activityID string, batch []models.Ticket) error {
	detailIDs := make([]string, 0)
	studentIDs := make([]string, 0)
	studentsByDetail := make(map[string][]string)
	requested := make(map[ceilingKey]int)
	seenStudent := make(map[string]struct{})

	for _, ticket := range batch {
		if ticket.Points <= 0 {
			return apperror.ErrValidation.Detail("points must be positive, got %d for student %s", ticket.Points, ticket.Student)
		}
		key := ceilingKey{detail: ticket.DetailID, student: ticket.Student}
		if _, ok := studentsByDetail[ticket.DetailID]; !ok {
			detailIDs = append(detailIDs, ticket.DetailID)
		}
		if _, ok := requested[key]; !ok {
			studentsByDetail[ticket.DetailID] = append(studentsByDetail[ticket.DetailID], ticket.Student)
		}
		requested[key] = addPoints(requested[key], ticket.Points)
		if _, ok := seenStudent[ticket.Student]; !ok {
			seenStudent[ticket.Student] = struct{}{}
			studentIDs = append(studentIDs, ticket.Student)
		}
	}

	details, err := repos.Details.GetByIDs(ctx, detailIDs)
	if err != nil {
		return err
	}
	for _, id := range detailIDs {
		detail, ok := details[id]
		if !ok {
			return apperror.ErrDetailNotFound.Detail("detail %s not found", id)
		}
		if detail.ActivityID != activityID {
			return apperror.ErrDetailMismatch.Detail("detail %s does not belong to activity %s", id, activityID)
		}
	}

	missing, err := repos.Students.Missing(ctx, studentIDs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return apperror.ErrStudentNotFound.Detail("unknown students: %s", strings.Join(missing, ", "))
	}

	for _, detailID := range detailIDs {
		detail := details[detailID]
		current, err := repos.Tickets.SumPointsByStudent(ctx, detailID, studentsByDetail[detailID])
		if err != nil {
			return err
		}
		for _, student := range studentsByDetail[detailID] {
			held := current[student]
			want := requested[ceilingKey{detail: detailID, student: student}]
			if want > detail.MaxPoints-held {
				return apperror.ErrPointsCeilingExceeded.Detail(
					"student %s would hold %d of %d points on detail %q", student, addPoints(held, want), detail.MaxPoints, detail.Name)
			}
		}
	}
	return nil
}

// addPoints sums two non-negative point values, saturating at math.MaxInt
// instead of wrapping.
func addPoints(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func (s *ticketService) Update(ctx context.Context, actor Actor, activityID, ticketID string, payload dto.TicketUpdateRequest) (dto.TicketResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ticket.update", trace.WithAttributes(
		attribute.String("activity.id", activityID),
		attribute.String("ticket.id", ticketID),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		err = validationError(err)
		failSpan(span, err)
		return dto.TicketResponse{}, err
	}

	var updated models.Ticket
	err := withRetry(ctx, func() error {
		return s.uow.WithinActivity(ctx, activityID, func(ctx context.Context, repos repository.Repositories, activity *models.Activity) error {
			if err := s.issuableBy(actor, activity); err != nil {
				return err
			}
			ticket, err := loadTicket(ctx, repos, activity.ID, ticketID)
			if err != nil {
				return err
			}
			detail, err := loadDetail(ctx, repos, activity.ID, payload.DetailID)
			if err != nil {
				return err
			}

			student := strings.TrimSpace(payload.Student)
			missing, err := repos.Students.Missing(ctx, []string{student})
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return apperror.ErrStudentNotFound.Detail("unknown student: %s", student)
			}

			current, err := repos.Tickets.SumPoints(ctx, detail.ID, student, ticket.ID)
			if err != nil {
				return err
			}
			if payload.Points > detail.MaxPoints-current {
				return apperror.ErrPointsCeilingExceeded.Detail(
					"student %s would hold %d of %d points on detail %q", student, addPoints(current, payload.Points), detail.MaxPoints, detail.Name)
			}

			if payload.Date != "" {
				date, err := dto.ParseDate(payload.Date)
				if err != nil {
					return apperror.ErrValidation.Detail("date: %v", err)
				}
				ticket.Date = date
			}
			ticket.DetailID = detail.ID
			ticket.Student = student
			ticket.Type = payload.Type
			ticket.Points = payload.Points

			if err := repos.Tickets.Update(ctx, &ticket); err != nil {
				return err
			}
			updated = ticket
			return nil
		})
	})
	if err != nil {
		failSpan(span, err)
		return dto.TicketResponse{}, denied(ctx, s.audit, actor, "ticket", ticketID, err)
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditTicketUpdated,
		EntityType: "ticket",
		EntityID:   ticketID,
		Metadata:   map[string]interface{}{"activity_id": activityID, "points": updated.Points},
	})
	return dto.NewTicketResponse(updated), nil
}

func (s *ticketService) Delete(ctx context.Context, actor Actor, activityID, ticketID string) error {
	ctx, span := s.tracer.Start(ctx, "ticket.delete", trace.WithAttributes(
		attribute.String("activity.id", activityID),
		attribute.String("ticket.id", ticketID),
	))
	defer span.End()

	err := withRetry(ctx, func() error {
		return s.uow.WithinActivity(ctx, activityID, func(ctx context.Context, repos repository.Repositories, activity *models.Activity) error {
			if err := s.issuableBy(actor, activity); err != nil {
				return err
			}
			if _, err := loadTicket(ctx, repos, activity.ID, ticketID); err != nil {
				return err
			}
			return repos.Tickets.SoftDelete(ctx, ticketID)
		})
	})
	if err != nil {
		failSpan(span, err)
		return denied(ctx, s.audit, actor, "ticket", ticketID, err)
	}

	s.audit.Record(ctx, AuditEntry{
		Actor:      actor,
		Action:     AuditTicketDeleted,
		EntityType: "ticket",
		EntityID:   ticketID,
		Metadata:   map[string]interface{}{"activity_id": activityID},
	})
	return nil
}

func (s *ticketService) List(ctx context.Context, activityID, detailID string) ([]dto.TicketResponse, error) {
	var tickets []models.Ticket
	err := withRetry(ctx, func() error {
		if _, err := s.activities.GetByID(ctx, activityID); err != nil {
			return storageError(err, apperror.ErrActivityNotFound)
		}
		if detailID != "" {
			detail, err := s.details.GetByID(ctx, detailID)
			if err != nil {
				return storageError(err, apperror.ErrDetailNotFound)
			}
			if detail.ActivityID != activityID {
				return apperror.ErrDetailMismatch
			}
		}

		var err error
		tickets, err = s.tickets.List(ctx, repository.TicketFilter{ActivityID: activityID, DetailID: detailID})
		return storageError(err, nil)
	})
	if err != nil {
		return nil, err
	}
	return dto.NewTicketResponses(tickets), nil
}

func (s *ticketService) StudentTickets(ctx context.Context, actor Actor, query dto.StudentTicketQuery) ([]dto.TicketResponse, error) {
	student := strings.TrimSpace(query.Student)
	switch {
	case actor.IsStudent():
		student = actor.ID
	case actor.IsAdmin() && student != "":
	default:
		return nil, denied(ctx, s.audit, actor, "ticket", "", apperror.ErrForbidden.Detail("ticket history is limited to students"))
	}
	if query.Type != nil && !query.Type.Valid() {
		return nil, apperror.ErrValidation.Detail("unknown ticket type %d", *query.Type)
	}
	if query.StartDate != nil && query.EndDate != nil && query.EndDate.Before(*query.StartDate) {
		return nil, apperror.ErrValidation.Detail("endDate must not be before startDate")
	}

	filter := repository.TicketFilter{
		Student:      student,
		Type:         query.Type,
		From:         query.StartDate,
		WithActivity: true,
	}
	if query.EndDate != nil {
		// endDate is inclusive of the whole day.
		to := query.EndDate.Add(24 * time.Hour)
		filter.To = &to
	}

	var tickets []models.Ticket
	err := withRetry(ctx, func() error {
		var err error
		tickets, err = s.tickets.List(ctx, filter)
		return storageError(err, nil)
	})
	if err != nil {
		return nil, err
	}
	return dto.NewTicketResponses(tickets), nil
}

// loadTicket fetches a ticket and checks it belongs to activityID.
func loadTicket(ctx context.Context, repos repository.Repositories, activityID, ticketID string) (models.Ticket, error) {
	ticket, err := repos.Tickets.GetByID(ctx, ticketID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Ticket{}, apperror.ErrTicketNotFound
	}
	if err != nil {
		return models.Ticket{}, err
	}
	if ticket.ActivityID != activityID {
		return models.Ticket{}, apperror.ErrTicketNotFound.Detail("ticket %s does not belong to activity %s", ticketID, activityID)
	}
	return ticket, nil
}
