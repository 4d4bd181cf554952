package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReviewType distinguishes activity reviews from ticket batch reviews.
type ReviewType int

const (
	ReviewActivity ReviewType = iota
	ReviewTicket
)

// Valid reports whether t is a known review type.
func (t ReviewType) Valid() bool {
	return t == ReviewActivity || t == ReviewTicket
}

func (t ReviewType) String() string {
	switch t {
	case ReviewActivity:
		return "activity"
	case ReviewTicket:
		return "ticket"
	default:
		return "unknown"
	}
}

// ReviewState is the position of a review in the two-stage approval chain.
type ReviewState int

const (
	ReviewInstructorPending ReviewState = iota
	ReviewInstructorRejected
	ReviewCommitteePending
	ReviewCommitteeApproved
	ReviewCommitteeRejected
)

var reviewStateNames = [...]string{
	"instructor_pending",
	"instructor_rejected",
	"committee_pending",
	"committee_approved",
	"committee_rejected",
}

// Valid reports whether s is a known review state.
func (s ReviewState) Valid() bool {
	return s >= ReviewInstructorPending && s <= ReviewCommitteeRejected
}

func (s ReviewState) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return reviewStateNames[s]
}

// Decided reports whether no further action is possible on the review.
func (s ReviewState) Decided() bool {
	return s == ReviewInstructorRejected || s == ReviewCommitteeApproved || s == ReviewCommitteeRejected
}

// Review records one submission of an activity or ticket batch for approval.
type Review struct {
	ID                string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	ActivityID        string         `gorm:"type:varchar(36);not null;index" json:"activityId"`
	Type              ReviewType     `gorm:"not null;default:0;index" json:"type"`
	Owner             string         `gorm:"size:64;not null" json:"owner"`
	Instructor        string         `gorm:"size:64;not null;index" json:"instructor"`
	InstructorComment string         `gorm:"type:text" json:"instructorComment"`
	Committee         string         `gorm:"size:64;not null;index" json:"committee"`
	CommitteeComment  string         `gorm:"type:text" json:"committeeComment"`
	State             ReviewState    `gorm:"not null;default:0;index" json:"state"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deletedAt"`
}

// BeforeCreate assigns a random identifier when none was supplied.
func (r *Review) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
