package service

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
)

// checkReviewers verifies that an activity's reviewers are registered
// accounts of the expected type and that neither stage is held by the owner
// or by the same account twice.
func checkReviewers(ctx context.Context, admins repository.AdminRepository, owner, instructor, committee string) error {
	if instructor == "" || committee == "" {
		return apperror.ErrReviewerUnassigned
	}
	if instructor == owner || committee == owner {
		return apperror.ErrInvalidReviewer.Detail("the activity owner can not review their own activity")
	}
	if instructor == committee {
		return apperror.ErrInvalidReviewer.Detail("instructor and committee must be different accounts")
	}
	if err := checkReviewer(ctx, admins, "instructor", instructor, models.UserInstructor); err != nil {
		return err
	}
	return checkReviewer(ctx, admins, "committee", committee, models.UserCommittee, models.UserLocalCommittee)
}

func checkReviewer(ctx context.Context, admins repository.AdminRepository, stage, id string, allowed ...models.UserType) error {
	admin, err := admins.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.ErrInvalidReviewer.Detail("%s %q is not a registered account", stage, id)
	}
	if err != nil {
		return storageError(err, nil)
	}
	for _, t := range allowed {
		if admin.Type == t {
			return nil
		}
	}
	return apperror.ErrInvalidReviewer.Detail("%s %q has type %s", stage, id, admin.Type)
}

// reviewerOverride resolves a requested reviewer change. Only a super user may
// reassign reviewers; other actors may resend the current value unchanged.
func reviewerOverride(actor Actor, current string, requested *string) (string, bool, error) {
	if requested == nil {
		return current, false, nil
	}
	value := strings.TrimSpace(*requested)
	if value == current {
		return current, false, nil
	}
	if !actor.IsSU() {
		return "", false, apperror.ErrForbidden.Detail("only a super user may reassign reviewers")
	}
	return value, true, nil
}

// assignReviewers applies requested reviewer overrides to activity. A complete
// pair is validated as a whole; a partial assignment is checked per stage and
// again on submission.
func assignReviewers(ctx context.Context, admins repository.AdminRepository, actor Actor, activity *models.Activity, instructor, committee *string) error {
	nextInstructor, instructorChanged, err := reviewerOverride(actor, activity.Instructor, instructor)
	if err != nil {
		return err
	}
	nextCommittee, committeeChanged, err := reviewerOverride(actor, activity.Committee, committee)
	if err != nil {
		return err
	}
	if !instructorChanged && !committeeChanged {
		return nil
	}

	switch {
	case nextInstructor != "" && nextCommittee != "":
		if err := checkReviewers(ctx, admins, activity.Owner, nextInstructor, nextCommittee); err != nil {
			return err
		}
	case nextInstructor != "":
		if nextInstructor == activity.Owner {
			return apperror.ErrInvalidReviewer.Detail("the activity owner can not review their own activity")
		}
		if err := checkReviewer(ctx, admins, "instructor", nextInstructor, models.UserInstructor); err != nil {
			return err
		}
	case nextCommittee != "":
		if nextCommittee == activity.Owner {
			return apperror.ErrInvalidReviewer.Detail("the activity owner can not review their own activity")
		}
		if err := checkReviewer(ctx, admins, "committee", nextCommittee, models.UserCommittee, models.UserLocalCommittee); err != nil {
			return err
		}
	}

	activity.Instructor = nextInstructor
	activity.Committee = nextCommittee
	return nil
}
