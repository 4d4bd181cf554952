package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// DetailRepository persists activity details.
type DetailRepository interface {
	Create(ctx context.Context, detail *models.ActivityDetail) error
	GetByID(ctx context.Context, id string) (models.ActivityDetail, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]models.ActivityDetail, error)
	ListByActivity(ctx context.Context, activityID string) ([]models.ActivityDetail, error)
	Update(ctx context.Context, detail *models.ActivityDetail) error
	SoftDelete(ctx context.Context, id string) error
	MaxStudentTotal(ctx context.Context, id string) (int, error)
}

type detailRepository struct {
	db *gorm.DB
}

// NewDetailRepository constructs the detail repository.
func NewDetailRepository(db *gorm.DB) DetailRepository {
	return &detailRepository{db: db}
}

func (r *detailRepository) Create(ctx context.Context, detail *models.ActivityDetail) error {
	return r.db.WithContext(ctx).Create(detail).Error
}

func (r *detailRepository) GetByID(ctx context.Context, id string) (models.ActivityDetail, error) {
	var detail models.ActivityDetail
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&detail).Error; err != nil {
		return models.ActivityDetail{}, err
	}
	return detail, nil
}

func (r *detailRepository) GetByIDs(ctx context.Context, ids []string) (map[string]models.ActivityDetail, error) {
	result := make(map[string]models.ActivityDetail, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var details []models.ActivityDetail
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&details).Error; err != nil {
		return nil, err
	}
	for _, detail := range details {
		result[detail.ID] = detail
	}
	return result, nil
}

func (r *detailRepository) ListByActivity(ctx context.Context, activityID string) ([]models.ActivityDetail, error) {
	var details []models.ActivityDetail
	err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("created_at ASC").
		Find(&details).Error
	if err != nil {
		return nil, err
	}
	return details, nil
}

func (r *detailRepository) Update(ctx context.Context, detail *models.ActivityDetail) error {
	return r.db.WithContext(ctx).Save(detail).Error
}

// SoftDelete removes the detail and the tickets issued under it.
func (r *detailRepository) SoftDelete(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("detail_id = ?", id).Delete(&models.Ticket{}).Error; err != nil {
		return err
	}

	result := db.Where("id = ?", id).Delete(&models.ActivityDetail{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MaxStudentTotal returns the highest per-student point total under the detail.
func (r *detailRepository) MaxStudentTotal(ctx context.Context, id string) (int, error) {
	var totals []int
	err := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("detail_id = ?", id).
		Group("student").
		Pluck("SUM(points)", &totals).Error
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, total := range totals {
		if total > highest {
			highest = total
		}
	}
	return highest, nil
}
