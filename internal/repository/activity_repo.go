package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// ActivityFilter narrows activity listings.
type ActivityFilter struct {
	Limit  int
	Offset int
	State  *models.ActivityState
	Owner  string
}

// ActivityRepository persists activities.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	GetByID(ctx context.Context, id string) (models.Activity, error)
	List(ctx context.Context, filter ActivityFilter) ([]models.Activity, int64, error)
	Update(ctx context.Context, activity *models.Activity) error
	UpdateState(ctx context.Context, id string, from, to models.ActivityState) error
	SoftDelete(ctx context.Context, id string) error
}

type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository constructs the activity repository.
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, activity *models.Activity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *activityRepository) GetByID(ctx context.Context, id string) (models.Activity, error) {
	var activity models.Activity
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&activity).Error; err != nil {
		return models.Activity{}, err
	}
	return activity, nil
}

func (r *activityRepository) List(ctx context.Context, filter ActivityFilter) ([]models.Activity, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Activity{})

	if filter.State != nil {
		query = query.Where("state = ?", *filter.State)
	}
	if filter.Owner != "" {
		query = query.Where("owner = ?", filter.Owner)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var activities []models.Activity
	if err := query.Order("date DESC").Order("created_at DESC").Find(&activities).Error; err != nil {
		return nil, 0, err
	}

	return activities, total, nil
}

func (r *activityRepository) Update(ctx context.Context, activity *models.Activity) error {
	return r.db.WithContext(ctx).Save(activity).Error
}

// UpdateState moves an activity only if it is still in from.
func (r *activityRepository) UpdateState(ctx context.Context, id string, from, to models.ActivityState) error {
	result := r.db.WithContext(ctx).Model(&models.Activity{}).
		Where("id = ? AND state = ?", id, from).
		Update("state", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperror.ErrStateMismatch
	}
	return nil
}

// SoftDelete removes the activity together with its details, tickets and
// reviews, so no reviewer queue keeps pointing at it.
func (r *activityRepository) SoftDelete(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)

	if err := db.Where("activity_id = ?", id).Delete(&models.Review{}).Error; err != nil {
		return err
	}
	if err := db.Where("activity_id = ?", id).Delete(&models.Ticket{}).Error; err != nil {
		return err
	}
	if err := db.Where("activity_id = ?", id).Delete(&models.ActivityDetail{}).Error; err != nil {
		return err
	}

	result := db.Where("id = ?", id).Delete(&models.Activity{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
