package dto

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// ListMeta describes an offset based page of results.
type ListMeta struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// ActivityCreateRequest is the payload for PUT /activity/new.
type ActivityCreateRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description string  `json:"description" validate:"max=20000"`
	Location    string  `json:"location" validate:"max=255"`
	Date        string  `json:"date" validate:"required"`
	Instructor  *string `json:"instructor" validate:"omitempty,max=64"`
	Committee   *string `json:"committee" validate:"omitempty,max=64"`
}

// ActivityUpdateRequest carries a partial activity update.
type ActivityUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=20000"`
	Location    *string `json:"location" validate:"omitempty,max=255"`
	Date        *string `json:"date" validate:"omitempty,min=1"`
	Instructor  *string `json:"instructor" validate:"omitempty,max=64"`
	Committee   *string `json:"committee" validate:"omitempty,max=64"`
}

// ActivityListRequest filters GET /activity.
type ActivityListRequest struct {
	Limit  int
	Offset int
	State  *models.ActivityState
	Owner  string
}

// ActivityResponse is the wire form of an activity.
type ActivityResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Location    string               `json:"location"`
	Date        time.Time            `json:"date"`
	Owner       string               `json:"owner"`
	Instructor  string               `json:"instructor"`
	Committee   string               `json:"committee"`
	State       models.ActivityState `json:"state"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
	DeletedAt   *time.Time           `json:"deletedAt,omitempty"`
}

// NewActivityResponse converts an activity model into its wire form.
func NewActivityResponse(activity models.Activity) ActivityResponse {
	return ActivityResponse{
		ID:          activity.ID,
		Name:        activity.Name,
		Description: activity.Description,
		Location:    activity.Location,
		Date:        activity.Date,
		Owner:       activity.Owner,
		Instructor:  activity.Instructor,
		Committee:   activity.Committee,
		State:       activity.State,
		CreatedAt:   activity.CreatedAt,
		UpdatedAt:   activity.UpdatedAt,
		DeletedAt:   deletedAtPtr(activity.DeletedAt),
	}
}

// NewActivityResponses converts a slice of activities.
func NewActivityResponses(activities []models.Activity) []ActivityResponse {
	result := make([]ActivityResponse, 0, len(activities))
	for _, activity := range activities {
		result = append(result, NewActivityResponse(activity))
	}
	return result
}

// Model converts the wire form back into a model.
func (r ActivityResponse) Model() models.Activity {
	return models.Activity{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Location:    r.Location,
		Date:        r.Date,
		Owner:       r.Owner,
		Instructor:  r.Instructor,
		Committee:   r.Committee,
		State:       r.State,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		DeletedAt:   deletedAtValue(r.DeletedAt),
	}
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

// ParseDate accepts RFC 3339 timestamps and the bare ISO dates sent by the
// web client. Bare dates are interpreted as UTC midnight.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

func deletedAtPtr(value gorm.DeletedAt) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func deletedAtValue(value *time.Time) gorm.DeletedAt {
	if value == nil {
		return gorm.DeletedAt{}
	}
	return gorm.DeletedAt{Time: *value, Valid: true}
}
