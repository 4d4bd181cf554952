package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// UserType is the role of an account. Codes match the web client.
type UserType int

const (
	UserSU UserType = iota
	UserInstructor
	UserLocalOrg
	UserLocalCommittee
	UserOrg
	UserCommittee
	UserStudent
)

var userTypeNames = [...]string{
	"su",
	"instructor",
	"local_org",
	"local_committee",
	"org",
	"committee",
	"student",
}

// Valid reports whether t is a known user type.
func (t UserType) Valid() bool {
	return t >= UserSU && t <= UserStudent
}

// IsAdmin reports whether t is one of the administrative types.
func (t UserType) IsAdmin() bool {
	return t >= UserSU && t < UserStudent
}

// Role returns the role name carried in access tokens.
func (t UserType) Role() string {
	if !t.Valid() {
		return ""
	}
	return userTypeNames[t]
}

func (t UserType) String() string {
	if role := t.Role(); role != "" {
		return role
	}
	return "unknown"
}

// ParseUserType resolves a role name back to its type.
func ParseUserType(role string) (UserType, bool) {
	role = strings.ToLower(strings.TrimSpace(role))
	for idx, name := range userTypeNames {
		if name == role {
			return UserType(idx), true
		}
	}
	return 0, false
}

// Admin is an administrative account. Organisation accounts carry the
// instructor and committee that review their activities.
type Admin struct {
	ID           string         `gorm:"size:64;primaryKey" json:"id"`
	Name         string         `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Type         UserType       `gorm:"not null" json:"type"`
	Description  string         `gorm:"type:text" json:"description"`
	Instructor   string         `gorm:"size:64" json:"instructor"`
	Committee    string         `gorm:"size:64" json:"committee"`
	PasswordHash string         `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deletedAt"`
}
