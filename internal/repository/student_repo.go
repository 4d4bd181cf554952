package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// StudentImport is a normalised bulk import. Classes reference schools by
// name and students reference classes by name.
type StudentImport struct {
	Schools  []string
	Classes  []ClassImport
	Students []StudentRow
}

// ClassImport names a class and its school.
type ClassImport struct {
	Name   string
	School string
}

// StudentRow is one imported student.
type StudentRow struct {
	ID    string
	Name  string
	Class string
}

// StudentRepository persists students and their organisation.
type StudentRepository interface {
	GetByID(ctx context.Context, id string) (models.Student, error)
	Missing(ctx context.Context, ids []string) ([]string, error)
	Import(ctx context.Context, batch StudentImport) error
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs the student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) GetByID(ctx context.Context, id string) (models.Student, error) {
	var student models.Student
	err := r.db.WithContext(ctx).
		Preload("Class.School").
		Where("id = ?", id).
		First(&student).Error
	if err != nil {
		return models.Student{}, err
	}
	return student, nil
}

// Missing returns the ids that do not name a known student.
func (r *studentRepository) Missing(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var found []string
	if err := r.db.WithContext(ctx).Model(&models.Student{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// Import upserts schools, classes and students. It expects to run inside a
// transaction so a failed row leaves nothing behind.
func (r *studentRepository) Import(ctx context.Context, batch StudentImport) error {
	db := r.db.WithContext(ctx)

	schoolIDs := make(map[string]uint, len(batch.Schools))
	for _, name := range batch.Schools {
		school := models.School{Name: name}
		if err := db.Where(models.School{Name: name}).FirstOrCreate(&school).Error; err != nil {
			return err
		}
		schoolIDs[name] = school.ID
	}

	classIDs := make(map[string]uint, len(batch.Classes))
	for _, entry := range batch.Classes {
		schoolID, ok := schoolIDs[entry.School]
		if !ok {
			var school models.School
			if err := db.Where("name = ?", entry.School).First(&school).Error; err != nil {
				return fmt.Errorf("class %q: school %q: %w", entry.Name, entry.School, err)
			}
			schoolID = school.ID
			schoolIDs[entry.School] = schoolID
		}

		class := models.Class{Name: entry.Name, SchoolID: schoolID}
		if err := db.Where(models.Class{Name: entry.Name, SchoolID: schoolID}).FirstOrCreate(&class).Error; err != nil {
			return err
		}
		classIDs[entry.Name] = class.ID
	}

	if len(batch.Students) == 0 {
		return nil
	}

	students := make([]models.Student, 0, len(batch.Students))
	for _, row := range batch.Students {
		student := models.Student{ID: row.ID, Name: row.Name}
		if row.Class != "" {
			classID, ok := classIDs[row.Class]
			if !ok {
				var class models.Class
				if err := db.Where("name = ?", row.Class).First(&class).Error; err != nil {
					return fmt.Errorf("student %q: class %q: %w", row.ID, row.Class, err)
				}
				classID = class.ID
				classIDs[row.Class] = classID
			}
			student.ClassID = &classID
		}
		students = append(students, student)
	}

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "class_id", "updated_at"}),
	}).Create(&students).Error
}
