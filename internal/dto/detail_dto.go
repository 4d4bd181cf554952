package dto

import (
	"time"

	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// DetailCreateRequest is the payload for PUT /activity/:id/detail/new.
type DetailCreateRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	MaxPoints *int   `json:"maxPoints" validate:"required,gte=0,lte=1000000"`
}

// DetailUpdateRequest carries a partial detail update.
type DetailUpdateRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=255"`
	MaxPoints *int    `json:"maxPoints" validate:"omitempty,gte=0,lte=1000000"`
}

// DetailResponse is the wire form of an activity detail.
type DetailResponse struct {
	ID         string     `json:"id"`
	ActivityID string     `json:"activityId"`
	Name       string     `json:"name"`
	MaxPoints  int        `json:"maxPoints"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
}

// NewDetailResponse converts a detail model.
func NewDetailResponse(detail models.ActivityDetail) DetailResponse {
	return DetailResponse{
		ID:         detail.ID,
		ActivityID: detail.ActivityID,
		Name:       detail.Name,
		MaxPoints:  detail.MaxPoints,
		CreatedAt:  detail.CreatedAt,
		UpdatedAt:  detail.UpdatedAt,
		DeletedAt:  deletedAtPtr(detail.DeletedAt),
	}
}

// NewDetailResponses converts a slice of details.
func NewDetailResponses(details []models.ActivityDetail) []DetailResponse {
	result := make([]DetailResponse, 0, len(details))
	for _, detail := range details {
		result = append(result, NewDetailResponse(detail))
	}
	return result
}
