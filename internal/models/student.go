package models

import "time"

// Student represents a learner that can receive tickets.
type Student struct {
	ID        string    `gorm:"size:64;primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	ClassID   *uint     `gorm:"index" json:"classId"`
	Class     *Class    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"class,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Class groups students within a school.
type Class struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	Name     string  `gorm:"size:128;not null;uniqueIndex:idx_class_school_name" json:"name"`
	SchoolID uint    `gorm:"not null;uniqueIndex:idx_class_school_name" json:"schoolId"`
	School   *School `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"school,omitempty"`
}

// School is the top level organisational unit for students.
type School struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:255;not null;uniqueIndex" json:"name"`
}
