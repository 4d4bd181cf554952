package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketType distinguishes the kind of points a ticket awards.
type TicketType int

const (
	TicketDaily TicketType = iota
	TicketPersonality
)

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	return t == TicketDaily || t == TicketPersonality
}

func (t TicketType) String() string {
	switch t {
	case TicketDaily:
		return "daily"
	case TicketPersonality:
		return "personality"
	default:
		return "unknown"
	}
}

// Ticket awards points to a student under an activity detail.
type Ticket struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	ActivityID string         `gorm:"type:varchar(36);not null;index" json:"activityId"`
	DetailID   string         `gorm:"type:varchar(36);not null;index:idx_ticket_detail_student" json:"detailId"`
	Student    string         `gorm:"size:64;not null;index:idx_ticket_detail_student" json:"student"`
	Type       TicketType     `gorm:"not null;default:0" json:"type"`
	Points     int            `gorm:"not null" json:"points"`
	Date       time.Time      `gorm:"not null" json:"date"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deletedAt"`
	Activity   *Activity      `gorm:"foreignKey:ActivityID" json:"activity,omitempty"`
}

// BeforeCreate assigns a random identifier when none was supplied.
func (t *Ticket) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
