package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/activity-ticket-api/internal/models"
)

const (
	// UserKindAdmin tags administrative accounts on the wire.
	UserKindAdmin = "admin"
	// UserKindStudent tags student accounts on the wire.
	UserKindStudent = "student"
)

// SignInRequest is the admin credential payload.
type SignInRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=256"`
}

// SignInResponse carries the issued access token.
type SignInResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	User      AdminResponse `json:"user"`
}

// StudentSignInResponse answers GET /user/oauth2/sign-in. User is always the
// student variant.
type StudentSignInResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// AdminCreateRequest is the payload for PUT /user/admin/new.
type AdminCreateRequest struct {
	ID          string          `json:"id" validate:"required,max=64"`
	Name        string          `json:"name" validate:"required,max=255"`
	Type        models.UserType `json:"type" validate:"gte=0,lte=5"`
	Description string          `json:"description" validate:"max=2000"`
	Instructor  string          `json:"instructor" validate:"max=64"`
	Committee   string          `json:"committee" validate:"max=64"`
	Password    string          `json:"password" validate:"required,min=8,max=256"`
}

// AdminUpdateRequest carries a partial admin update.
type AdminUpdateRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Type        *models.UserType `json:"type" validate:"omitempty,gte=0,lte=5"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Instructor  *string          `json:"instructor" validate:"omitempty,max=64"`
	Committee   *string          `json:"committee" validate:"omitempty,max=64"`
	Password    *string          `json:"password" validate:"omitempty,min=8,max=256"`
}

// AdminListRequest filters GET /user/admin.
type AdminListRequest struct {
	Type   *models.UserType
	Limit  int
	Offset int
}

// AdminResponse is the wire form of an admin. The password hash is never sent.
type AdminResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        models.UserType `json:"type"`
	Description string          `json:"description"`
	Instructor  string          `json:"instructor,omitempty"`
	Committee   string          `json:"committee,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	DeletedAt   *time.Time      `json:"deletedAt,omitempty"`
}

// NewAdminResponse converts an admin model.
func NewAdminResponse(admin models.Admin) AdminResponse {
	return AdminResponse{
		ID:          admin.ID,
		Name:        admin.Name,
		Type:        admin.Type,
		Description: admin.Description,
		Instructor:  admin.Instructor,
		Committee:   admin.Committee,
		CreatedAt:   admin.CreatedAt,
		UpdatedAt:   admin.UpdatedAt,
		DeletedAt:   deletedAtPtr(admin.DeletedAt),
	}
}

// Model converts the wire form back into a model without credentials.
func (r AdminResponse) Model() models.Admin {
	return models.Admin{
		ID:          r.ID,
		Name:        r.Name,
		Type:        r.Type,
		Description: r.Description,
		Instructor:  r.Instructor,
		Committee:   r.Committee,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		DeletedAt:   deletedAtValue(r.DeletedAt),
	}
}

// StudentResponse is the wire form of a student. Class holds the class name.
type StudentResponse struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Type   models.UserType `json:"type"`
	Class  string          `json:"class"`
	School string          `json:"school,omitempty"`
}

// NewStudentResponse converts a student model with its class preloaded.
func NewStudentResponse(student models.Student) StudentResponse {
	resp := StudentResponse{ID: student.ID, Name: student.Name, Type: models.UserStudent}
	if student.Class != nil {
		resp.Class = student.Class.Name
		if student.Class.School != nil {
			resp.School = student.Class.School.Name
		}
	}
	return resp
}

// User is the tagged union of admin and student accounts. Exactly one of
// Admin or Student is set.
type User struct {
	Admin   *AdminResponse
	Student *StudentResponse
}

// NewAdminUser wraps an admin.
func NewAdminUser(admin models.Admin) User {
	resp := NewAdminResponse(admin)
	return User{Admin: &resp}
}

// NewStudentUser wraps a student.
func NewStudentUser(student models.Student) User {
	resp := NewStudentResponse(student)
	return User{Student: &resp}
}

// Kind returns the discriminator of the union.
func (u User) Kind() string {
	if u.Student != nil {
		return UserKindStudent
	}
	return UserKindAdmin
}

type adminWire struct {
	Kind string `json:"kind"`
	AdminResponse
}

type studentWire struct {
	Kind string `json:"kind"`
	StudentResponse
}

// MarshalJSON writes the variant flattened next to its kind.
func (u User) MarshalJSON() ([]byte, error) {
	switch {
	case u.Admin != nil && u.Student != nil:
		return nil, fmt.Errorf("user carries both admin and student variants")
	case u.Admin != nil:
		return json.Marshal(adminWire{Kind: UserKindAdmin, AdminResponse: *u.Admin})
	case u.Student != nil:
		return json.Marshal(studentWire{Kind: UserKindStudent, StudentResponse: *u.Student})
	}
	return nil, fmt.Errorf("user carries no variant")
}

// UnmarshalJSON selects the variant from the kind discriminator.
func (u *User) UnmarshalJSON(data []byte) error {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Kind {
	case UserKindAdmin:
		var wire adminWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		*u = User{Admin: &wire.AdminResponse}
	case UserKindStudent:
		var wire studentWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		*u = User{Student: &wire.StudentResponse}
	default:
		return fmt.Errorf("unknown user kind %q", head.Kind)
	}
	return nil
}

// LegacyAdmin is the pre-migration admin record with a single head field.
type LegacyAdmin struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        models.UserType `json:"type"`
	Description string          `json:"description"`
	Head        string          `json:"head"`
	Password    string          `json:"password"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// UpgradeLegacyAdmin maps head onto instructor for organisation accounts.
// Other account types drop head. Committee is left for an SU to assign.
func UpgradeLegacyAdmin(legacy LegacyAdmin) (models.Admin, error) {
	if !legacy.Type.IsAdmin() {
		return models.Admin{}, fmt.Errorf("legacy admin %q has non admin type %d", legacy.ID, legacy.Type)
	}

	admin := models.Admin{
		ID:           legacy.ID,
		Name:         legacy.Name,
		Type:         legacy.Type,
		Description:  legacy.Description,
		PasswordHash: legacy.Password,
		CreatedAt:    legacy.CreatedAt,
	}
	if legacy.Type == models.UserLocalOrg || legacy.Type == models.UserOrg {
		admin.Instructor = legacy.Head
	}
	return admin, nil
}

// StudentImportRequest is the bulk student payload. Students reference
// classes by name and classes reference schools by name.
type StudentImportRequest struct {
	Students []StudentImportEntry `json:"students" validate:"dive"`
	Classes  []ClassImportEntry   `json:"classes" validate:"dive"`
	Schools  []SchoolImportEntry  `json:"schools" validate:"dive"`
}

// StudentImportEntry is one imported student.
type StudentImportEntry struct {
	ID    string `json:"id" validate:"required,max=64"`
	Name  string `json:"name" validate:"required,max=255"`
	Class string `json:"class" validate:"max=128"`
}

// ClassImportEntry is one imported class.
type ClassImportEntry struct {
	Name   string `json:"name" validate:"required,max=128"`
	School string `json:"school" validate:"required,max=255"`
}

// SchoolImportEntry is one imported school.
type SchoolImportEntry struct {
	Name string `json:"name" validate:"required,max=255"`
}

// StudentImportResult reports how many rows were written.
type StudentImportResult struct {
	Schools  int `json:"schools"`
	Classes  int `json:"classes"`
	Students int `json:"students"`
}
