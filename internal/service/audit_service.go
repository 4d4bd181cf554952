package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
)

// Audit actions written by the workflow services.
const (
	AuditActivityCreated   = "activity.created"
	AuditActivityUpdated   = "activity.updated"
	AuditActivityDeleted   = "activity.deleted"
	AuditActivitySubmitted = "activity.submitted"
	AuditReviewDecided     = "review.decided"
	AuditTicketsIssued     = "tickets.issued"
	AuditTicketUpdated     = "ticket.updated"
	AuditTicketDeleted     = "ticket.deleted"
	AuditDetailChanged     = "detail.changed"
	AuditAdminChanged      = "admin.changed"
	AuditStudentsImported  = "students.imported"
	AuditAccessDenied      = "access.denied"
)

// AuditEntry captures the details required to persist an audit entry.
type AuditEntry struct {
	Actor      Actor
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]interface{}
}

// AuditRecorder records audit entries. Recording never fails the caller's
// operation; implementations log their own failures.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditService exposes methods to query and persist the audit trail.
type AuditService interface {
	AuditRecorder
	List(ctx context.Context, req dto.AuditLogListRequest) ([]dto.AuditLogResponse, dto.ListMeta, error)
}

type auditService struct {
	repo   repository.AuditLogRepository
	logger zerolog.Logger
}

// NewAuditService constructs the audit service.
func NewAuditService(repo repository.AuditLogRepository, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:   repo,
		logger: logger.With().Str("component", "audit_service").Logger(),
	}
}

func (s *auditService) Record(ctx context.Context, entry AuditEntry) {
	if err := s.record(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("action", entry.Action).Str("entity_id", entry.EntityID).Msg("failed to persist audit log")
	}
}

func (s *auditService) record(ctx context.Context, entry AuditEntry) error {
	if strings.TrimSpace(entry.Action) == "" {
		return fmt.Errorf("action is required")
	}
	if strings.TrimSpace(entry.EntityType) == "" {
		return fmt.Errorf("entity type is required")
	}

	actorID := strings.TrimSpace(entry.Actor.ID)
	if actorID == "" {
		actorID = "anonymous"
	}

	model := models.AuditLog{
		ActorID:    actorID,
		ActorRole:  entry.Actor.normalizedRole(),
		Action:     strings.ToLower(strings.TrimSpace(entry.Action)),
		EntityType: strings.ToLower(strings.TrimSpace(entry.EntityType)),
		EntityID:   entry.EntityID,
		Metadata:   sanitizeMetadata(entry.Metadata),
	}

	return s.repo.Create(ctx, &model)
}

func (s *auditService) List(ctx context.Context, req dto.AuditLogListRequest) ([]dto.AuditLogResponse, dto.ListMeta, error) {
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}

	entries, total, err := s.repo.List(ctx, repository.AuditLogFilter{
		Page:       page,
		PageSize:   pageSize,
		ActorID:    strings.TrimSpace(req.ActorID),
		Action:     strings.ToLower(strings.TrimSpace(req.Action)),
		EntityType: strings.ToLower(strings.TrimSpace(req.EntityType)),
		EntityID:   strings.TrimSpace(req.EntityID),
	})
	if err != nil {
		return nil, dto.ListMeta{}, storageError(err, nil)
	}

	responses := make([]dto.AuditLogResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, dto.NewAuditLogResponse(entry))
	}

	return responses, dto.ListMeta{Total: total, Limit: pageSize, Offset: (page - 1) * pageSize}, nil
}

func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "password") || strings.Contains(lower, "token") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}
