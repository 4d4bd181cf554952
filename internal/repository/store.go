package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/models"
)

// Repositories bundles every repository bound to the same connection or
// transaction.
type Repositories struct {
	Activities ActivityRepository
	Details    DetailRepository
	Tickets    TicketRepository
	Reviews    ReviewRepository
	Admins     AdminRepository
	Students   StudentRepository
	AuditLogs  AuditLogRepository
}

// NewRepositories binds all repositories to db.
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Activities: NewActivityRepository(db),
		Details:    NewDetailRepository(db),
		Tickets:    NewTicketRepository(db),
		Reviews:    NewReviewRepository(db),
		Admins:     NewAdminRepository(db),
		Students:   NewStudentRepository(db),
		AuditLogs:  NewAuditLogRepository(db),
	}
}

// ActivityWork runs inside a transaction holding the activity row lock.
type ActivityWork func(ctx context.Context, repos Repositories, activity *models.Activity) error

// UnitOfWork runs groups of repository calls atomically.
type UnitOfWork interface {
	// Within runs fn in a transaction.
	Within(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// WithinActivity serialises fn with every other mutation of the same
	// activity, both in process and across processes through a row lock.
	WithinActivity(ctx context.Context, activityID string, fn ActivityWork) error
}

type unitOfWork struct {
	db    *gorm.DB
	locks *keyedLocker
}

// NewUnitOfWork constructs a transaction runner over db.
func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &unitOfWork{db: db, locks: newKeyedLocker()}
}

func (u *unitOfWork) Within(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewRepositories(tx))
	})
	return Classify(err)
}

func (u *unitOfWork) WithinActivity(ctx context.Context, activityID string, fn ActivityWork) error {
	unlock, err := u.locks.Lock(ctx, activityID)
	if err != nil {
		return Classify(err)
	}
	defer unlock()

	err = u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var activity models.Activity
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", activityID).
			First(&activity).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrActivityNotFound
		}
		if err != nil {
			return err
		}

		return fn(ctx, NewRepositories(tx), &activity)
	})
	return Classify(err)
}
