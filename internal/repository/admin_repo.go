package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// AdminFilter narrows admin listings.
type AdminFilter struct {
	Type   *models.UserType
	Limit  int
	Offset int
}

// AdminRepository persists administrative accounts.
type AdminRepository interface {
	Create(ctx context.Context, admin *models.Admin) error
	GetByID(ctx context.Context, id string) (models.Admin, error)
	GetByName(ctx context.Context, name string) (models.Admin, error)
	List(ctx context.Context, filter AdminFilter) ([]models.Admin, int64, error)
	Update(ctx context.Context, admin *models.Admin) error
	SoftDelete(ctx context.Context, id string) error
}

type adminRepository struct {
	db *gorm.DB
}

// NewAdminRepository constructs the admin repository.
func NewAdminRepository(db *gorm.DB) AdminRepository {
	return &adminRepository{db: db}
}

func (r *adminRepository) Create(ctx context.Context, admin *models.Admin) error {
	return r.db.WithContext(ctx).Create(admin).Error
}

func (r *adminRepository) GetByID(ctx context.Context, id string) (models.Admin, error) {
	var admin models.Admin
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&admin).Error; err != nil {
		return models.Admin{}, err
	}
	return admin, nil
}

func (r *adminRepository) GetByName(ctx context.Context, name string) (models.Admin, error) {
	var admin models.Admin
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&admin).Error; err != nil {
		return models.Admin{}, err
	}
	return admin, nil
}

func (r *adminRepository) List(ctx context.Context, filter AdminFilter) ([]models.Admin, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Admin{})
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var admins []models.Admin
	if err := query.Order("type ASC").Order("name ASC").Find(&admins).Error; err != nil {
		return nil, 0, err
	}
	return admins, total, nil
}

func (r *adminRepository) Update(ctx context.Context, admin *models.Admin) error {
	return r.db.WithContext(ctx).Save(admin).Error
}

func (r *adminRepository) SoftDelete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Admin{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
