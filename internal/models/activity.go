package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityState is the lifecycle position of an activity. The integer codes
// are part of the wire format.
type ActivityState int

const (
	ActivityDraft ActivityState = iota
	ActivityPending
	ActivityApproved
	ActivityRejected
	ActivityTicketPending
	ActivityTicketApproved
	ActivityTicketRejected
)

var activityStateNames = [...]string{
	"draft",
	"pending",
	"approved",
	"rejected",
	"ticket_pending",
	"ticket_approved",
	"ticket_rejected",
}

// Valid reports whether s is a known state.
func (s ActivityState) Valid() bool {
	return s >= ActivityDraft && s <= ActivityTicketRejected
}

func (s ActivityState) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return activityStateNames[s]
}

// Activity is a school event that must be reviewed before it can award tickets.
type Activity struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string         `gorm:"size:255;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Location    string         `gorm:"size:255" json:"location"`
	Date        time.Time      `gorm:"not null" json:"date"`
	Owner       string         `gorm:"size:64;not null;index" json:"owner"`
	Instructor  string         `gorm:"size:64;index" json:"instructor"`
	Committee   string         `gorm:"size:64;index" json:"committee"`
	State       ActivityState  `gorm:"not null;default:0;index" json:"state"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deletedAt"`
}

// BeforeCreate assigns a random identifier when none was supplied.
func (a *Activity) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
