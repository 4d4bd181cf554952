package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	ActivityID   string
	DetailID     string
	Student      string
	Type         *models.TicketType
	From         *time.Time
	To           *time.Time
	WithActivity bool
}

// TicketRepository persists tickets and answers points accounting queries.
// Soft deleted tickets never count towards a ceiling.
type TicketRepository interface {
	CreateBatch(ctx context.Context, tickets []models.Ticket) error
	GetByID(ctx context.Context, id string) (models.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]models.Ticket, error)
	Update(ctx context.Context, ticket *models.Ticket) error
	SoftDelete(ctx context.Context, id string) error
	SumPoints(ctx context.Context, detailID, student, excludeID string) (int, error)
	SumPointsByStudent(ctx context.Context, detailID string, students []string) (map[string]int, error)
}

type ticketRepository struct {
	db *gorm.DB
}

// NewTicketRepository constructs the ticket repository.
func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) CreateBatch(ctx context.Context, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("Activity").Create(&tickets).Error
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (models.Ticket, error) {
	var ticket models.Ticket
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ticket).Error; err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]models.Ticket, error) {
	query := r.db.WithContext(ctx).Model(&models.Ticket{})

	if filter.ActivityID != "" {
		query = query.Where("activity_id = ?", filter.ActivityID)
	}
	if filter.DetailID != "" {
		query = query.Where("detail_id = ?", filter.DetailID)
	}
	if filter.Student != "" {
		query = query.Where("student = ?", filter.Student)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.From != nil {
		query = query.Where("date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("date < ?", *filter.To)
	}
	if filter.WithActivity {
		query = query.Preload("Activity")
	}

	var tickets []models.Ticket
	if err := query.Order("date DESC").Order("created_at DESC").Find(&tickets).Error; err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *models.Ticket) error {
	return r.db.WithContext(ctx).Omit("Activity").Save(ticket).Error
}

func (r *ticketRepository) SoftDelete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Ticket{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SumPoints totals a student's points under a detail, optionally ignoring one ticket.
func (r *ticketRepository) SumPoints(ctx context.Context, detailID, student, excludeID string) (int, error) {
	query := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("detail_id = ? AND student = ?", detailID, student)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var total int
	if err := query.Select("COALESCE(SUM(points), 0)").Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *ticketRepository) SumPointsByStudent(ctx context.Context, detailID string, students []string) (map[string]int, error) {
	totals := make(map[string]int, len(students))
	if len(students) == 0 {
		return totals, nil
	}

	var rows []struct {
		Student string
		Total   int
	}
	err := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Select("student, SUM(points) AS total").
		Where("detail_id = ? AND student IN ?", detailID, students).
		Group("student").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		totals[row.Student] = row.Total
	}
	return totals, nil
}
