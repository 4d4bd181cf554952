package service

import (
	"strings"

	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// Actor is the authenticated principal performing an operation.
type Actor struct {
	ID   string
	Role string
}

// Type resolves the actor's user type from its role name.
func (a Actor) Type() (models.UserType, bool) {
	return models.ParseUserType(a.Role)
}

// IsSU reports whether the actor is a super user.
func (a Actor) IsSU() bool {
	t, ok := a.Type()
	return ok && t == models.UserSU
}

// IsAdmin reports whether the actor holds any administrative role.
func (a Actor) IsAdmin() bool {
	t, ok := a.Type()
	return ok && t.IsAdmin()
}

// IsStudent reports whether the actor is a student.
func (a Actor) IsStudent() bool {
	t, ok := a.Type()
	return ok && t == models.UserStudent
}

func (a Actor) normalizedRole() string {
	role := strings.ToLower(strings.TrimSpace(a.Role))
	if role == "" {
		return "system"
	}
	return role
}
