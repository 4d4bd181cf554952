package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityDetail is a scoring category of an activity with a per-student ceiling.
type ActivityDetail struct {
	ID         string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	ActivityID string         `gorm:"type:varchar(36);not null;index" json:"activityId"`
	Name       string         `gorm:"size:255;not null" json:"name"`
	MaxPoints  int            `gorm:"not null;default:0" json:"maxPoints"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deletedAt"`
}

// BeforeCreate assigns a random identifier when none was supplied.
func (d *ActivityDetail) BeforeCreate(*gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
