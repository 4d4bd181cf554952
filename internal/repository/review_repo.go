package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// ReviewerFilter narrows a reviewer's queue. Without a state the queue holds
// only the reviews waiting on that reviewer's stage.
type ReviewerFilter struct {
	Reviewer string
	Type     *models.ReviewType
	State    *models.ReviewState
	Offset   int
	Limit    int
}

// ReviewRepository persists reviews.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	GetByID(ctx context.Context, id string) (models.Review, error)
	Update(ctx context.Context, review *models.Review) error
	ListByActivity(ctx context.Context, activityID string) ([]models.Review, error)
	ListForReviewer(ctx context.Context, filter ReviewerFilter) ([]models.Review, error)
	CountForReviewer(ctx context.Context, filter ReviewerFilter) (int64, error)
}

type reviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository constructs the review repository.
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) Create(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *reviewRepository) GetByID(ctx context.Context, id string) (models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&review).Error; err != nil {
		return models.Review{}, err
	}
	return review, nil
}

func (r *reviewRepository) Update(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Save(review).Error
}

func (r *reviewRepository) ListByActivity(ctx context.Context, activityID string) ([]models.Review, error) {
	var reviews []models.Review
	err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("created_at DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *reviewRepository) reviewerQuery(ctx context.Context, filter ReviewerFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Review{})

	if filter.State != nil {
		query = query.Where("(instructor = ? OR committee = ?) AND state = ?", filter.Reviewer, filter.Reviewer, *filter.State)
	} else {
		query = query.Where(
			"(instructor = ? AND state = ?) OR (committee = ? AND state = ?)",
			filter.Reviewer, models.ReviewInstructorPending,
			filter.Reviewer, models.ReviewCommitteePending,
		)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	return query
}

func (r *reviewRepository) ListForReviewer(ctx context.Context, filter ReviewerFilter) ([]models.Review, error) {
	query := r.reviewerQuery(ctx, filter)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var reviews []models.Review
	if err := query.Order("created_at ASC").Find(&reviews).Error; err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *reviewRepository) CountForReviewer(ctx context.Context, filter ReviewerFilter) (int64, error) {
	var total int64
	if err := r.reviewerQuery(ctx, filter).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
