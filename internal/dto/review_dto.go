package dto

import (
	"time"

	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// ReviewDecisionRequest is the reviewer verdict; state true approves.
type ReviewDecisionRequest struct {
	State   *bool  `json:"state" validate:"required"`
	Comment string `json:"comment" validate:"max=2000"`
}

// ReviewerQueueRequest filters GET /activity/review/reviewer.
type ReviewerQueueRequest struct {
	Offset int
	Limit  int
	Type   *models.ReviewType
	State  *models.ReviewState
	Count  bool
}

// ReviewCountResponse answers a reviewer queue request with count=true.
type ReviewCountResponse struct {
	Count int64 `json:"count"`
}

// ReviewResponse is the wire form of a review.
type ReviewResponse struct {
	ID                string             `json:"id"`
	ActivityID        string             `json:"activityId"`
	Type              models.ReviewType  `json:"type"`
	Owner             string             `json:"owner"`
	Instructor        string             `json:"instructor"`
	InstructorComment string             `json:"instructorComment"`
	Committee         string             `json:"committee"`
	CommitteeComment  string             `json:"committeeComment"`
	State             models.ReviewState `json:"state"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	DeletedAt         *time.Time         `json:"deletedAt,omitempty"`
}

// NewReviewResponse converts a review model.
func NewReviewResponse(review models.Review) ReviewResponse {
	return ReviewResponse{
		ID:                review.ID,
		ActivityID:        review.ActivityID,
		Type:              review.Type,
		Owner:             review.Owner,
		Instructor:        review.Instructor,
		InstructorComment: review.InstructorComment,
		Committee:         review.Committee,
		CommitteeComment:  review.CommitteeComment,
		State:             review.State,
		CreatedAt:         review.CreatedAt,
		UpdatedAt:         review.UpdatedAt,
		DeletedAt:         deletedAtPtr(review.DeletedAt),
	}
}

// NewReviewResponses converts a slice of reviews.
func NewReviewResponses(reviews []models.Review) []ReviewResponse {
	result := make([]ReviewResponse, 0, len(reviews))
	for _, review := range reviews {
		result = append(result, NewReviewResponse(review))
	}
	return result
}

// Model converts the wire form back into a model.
func (r ReviewResponse) Model() models.Review {
	return models.Review{
		ID:                r.ID,
		ActivityID:        r.ActivityID,
		Type:              r.Type,
		Owner:             r.Owner,
		Instructor:        r.Instructor,
		InstructorComment: r.InstructorComment,
		Committee:         r.Committee,
		CommitteeComment:  r.CommitteeComment,
		State:             r.State,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		DeletedAt:         deletedAtValue(r.DeletedAt),
	}
}
