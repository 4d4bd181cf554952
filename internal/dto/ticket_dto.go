package dto

import (
	"fmt"
	"time"

	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// TicketEntry is one line of an issuance batch. The web client sends the
// legacy shape without activityId or date; the activity comes from the URL.
type TicketEntry struct {
	DetailID string            `json:"detailId" validate:"omitempty,max=36"`
	Student  string            `json:"student" validate:"required,max=64"`
	Type     models.TicketType `json:"type" validate:"gte=0,lte=1"`
	Points   int               `json:"points" validate:"gt=0,lte=1000000"`
	Date     string            `json:"date,omitempty"`
}

// TicketUpdateRequest replaces the mutable fields of a ticket.
type TicketUpdateRequest struct {
	DetailID string            `json:"detailId" validate:"required,max=36"`
	Student  string            `json:"student" validate:"required,max=64"`
	Type     models.TicketType `json:"type" validate:"gte=0,lte=1"`
	Points   int               `json:"points" validate:"gt=0,lte=1000000"`
	Date     string            `json:"date,omitempty"`
}

// StudentTicketQuery filters GET /user/student/ticket.
type StudentTicketQuery struct {
	Student   string
	StartDate *time.Time
	EndDate   *time.Time
	Type      *models.TicketType
}

// LegacyTicket is the pre-migration ticket shape that lacks an activity and
// a date.
type LegacyTicket struct {
	ID        string            `json:"id"`
	DetailID  string            `json:"detailId"`
	Student   string            `json:"student"`
	Type      models.TicketType `json:"type"`
	Points    int               `json:"points"`
	UpdatedAt *time.Time        `json:"updatedAt,omitempty"`
	DeletedAt *time.Time        `json:"deletedAt,omitempty"`
}

// UpgradeLegacyTicket converts a legacy ticket into the canonical schema.
// The owning activity is required and its date becomes the ticket date.
func UpgradeLegacyTicket(legacy LegacyTicket, activity models.Activity) (models.Ticket, error) {
	if activity.ID == "" {
		return models.Ticket{}, fmt.Errorf("legacy ticket %q: owning activity is required", legacy.ID)
	}

	ticket := models.Ticket{
		ID:         legacy.ID,
		ActivityID: activity.ID,
		DetailID:   legacy.DetailID,
		Student:    legacy.Student,
		Type:       legacy.Type,
		Points:     legacy.Points,
		Date:       activity.Date,
		DeletedAt:  deletedAtValue(legacy.DeletedAt),
	}
	if legacy.UpdatedAt != nil {
		ticket.UpdatedAt = *legacy.UpdatedAt
	}
	return ticket, nil
}

// Ticket builds the canonical ticket for an entry of a batch issued under
// activity. fallbackDetail is used when the entry omits its detail.
func (e TicketEntry) Ticket(activity models.Activity, fallbackDetail string) (models.Ticket, error) {
	detailID := e.DetailID
	if detailID == "" {
		detailID = fallbackDetail
	}

	ticket, err := UpgradeLegacyTicket(LegacyTicket{
		DetailID: detailID,
		Student:  e.Student,
		Type:     e.Type,
		Points:   e.Points,
	}, activity)
	if err != nil {
		return models.Ticket{}, err
	}

	if e.Date != "" {
		date, err := ParseDate(e.Date)
		if err != nil {
			return models.Ticket{}, err
		}
		ticket.Date = date
	}
	return ticket, nil
}

// TicketResponse is the canonical wire form of a ticket.
type TicketResponse struct {
	ID         string            `json:"id"`
	ActivityID string            `json:"activityId"`
	DetailID   string            `json:"detailId"`
	Student    string            `json:"student"`
	Type       models.TicketType `json:"type"`
	Points     int               `json:"points"`
	Date       time.Time         `json:"date"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	DeletedAt  *time.Time        `json:"deletedAt,omitempty"`
	Activity   *ActivityResponse `json:"activity,omitempty"`
}

// NewTicketResponse converts a ticket model, embedding its activity when loaded.
func NewTicketResponse(ticket models.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:         ticket.ID,
		ActivityID: ticket.ActivityID,
		DetailID:   ticket.DetailID,
		Student:    ticket.Student,
		Type:       ticket.Type,
		Points:     ticket.Points,
		Date:       ticket.Date,
		CreatedAt:  ticket.CreatedAt,
		UpdatedAt:  ticket.UpdatedAt,
		DeletedAt:  deletedAtPtr(ticket.DeletedAt),
	}
	if ticket.Activity != nil {
		activity := NewActivityResponse(*ticket.Activity)
		resp.Activity = &activity
	}
	return resp
}

// NewTicketResponses converts a slice of tickets.
func NewTicketResponses(tickets []models.Ticket) []TicketResponse {
	result := make([]TicketResponse, 0, len(tickets))
	for _, ticket := range tickets {
		result = append(result, NewTicketResponse(ticket))
	}
	return result
}

// Model converts the wire form back into a model.
func (r TicketResponse) Model() models.Ticket {
	ticket := models.Ticket{
		ID:         r.ID,
		ActivityID: r.ActivityID,
		DetailID:   r.DetailID,
		Student:    r.Student,
		Type:       r.Type,
		Points:     r.Points,
		Date:       r.Date,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		DeletedAt:  deletedAtValue(r.DeletedAt),
	}
	if r.Activity != nil {
		activity := r.Activity.Model()
		ticket.Activity = &activity
	}
	return ticket
}
