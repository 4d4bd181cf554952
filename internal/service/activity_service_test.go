package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/workflow"
)

func TestActivityServiceCreateSanitizesAndDefaults(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()

	activity, err := env.activities.Create(ctx, ownerActor, dto.ActivityCreateRequest{
		Name:        "  <i>Science</i> fair ",
		Description: "<p>Bring a poster</p><script>alert(1)</script>",
		Location:    "Hall &amp; Gym",
		Date:        "2024-04-01T09:30",
	})
	require.NoError(t, err)
	require.Equal(t, "Science fair", activity.Name)
	require.Equal(t, "<p>Bring a poster</p>", activity.Description)
	require.Equal(t, "Hall & Gym", activity.Location)
	require.Equal(t, ownerActor.ID, activity.Owner)
	require.Equal(t, 9, activity.Date.Hour())

	_, err = env.activities.Create(ctx, studentActor, dto.ActivityCreateRequest{Name: "x", Date: "2024-04-01"})
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = env.activities.Create(ctx, ownerActor, dto.ActivityCreateRequest{Name: "x", Date: "April"})
	require.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.activities.Create(ctx, ownerActor, dto.ActivityCreateRequest{Date: "2024-04-01"})
	require.ErrorIs(t, err, apperror.ErrValidation)
}

func TestActivityServiceListFilters(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()

	for _, name := range []string{"One", "Two", "Three"} {
		_, err := env.activities.Create(ctx, ownerActor, dto.ActivityCreateRequest{Name: name, Date: "2024-04-01"})
		require.NoError(t, err)
	}
	_, _ = env.approvedActivity(t, 5)

	items, meta, err := env.activities.List(ctx, dto.ActivityListRequest{Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, int64(4), meta.Total)
	require.Equal(t, 2, meta.Limit)

	approved := models.ActivityApproved
	items, meta, err = env.activities.List(ctx, dto.ActivityListRequest{State: &approved})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int64(1), meta.Total)
	require.Equal(t, defaultListLimit, meta.Limit)

	unknown := models.ActivityState(42)
	_, _, err = env.activities.List(ctx, dto.ActivityListRequest{State: &unknown})
	require.ErrorIs(t, err, apperror.ErrValidation)
}

func TestActivityServiceEditability(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()

	activity, err := env.activities.Create(ctx, ownerActor, dto.ActivityCreateRequest{Name: "Fair", Date: "2024-04-01"})
	require.NoError(t, err)

	location := "Library"
	_, err = env.activities.Update(ctx, otherOrgActor, activity.ID, dto.ActivityUpdateRequest{Location: &location})
	require.ErrorIs(t, err, apperror.ErrNotOwner)

	updated, err := env.activities.Update(ctx, ownerActor, activity.ID, dto.ActivityUpdateRequest{Location: &location})
	require.NoError(t, err)
	require.Equal(t, "Library", updated.Location)

	_, err = env.reviews.Submit(ctx, ownerActor, activity.ID)
	require.NoError(t, err)

	_, err = env.activities.Update(ctx, ownerActor, activity.ID, dto.ActivityUpdateRequest{Location: &location})
	require.ErrorIs(t, err, apperror.ErrNotEditable)

	err = env.activities.Delete(ctx, ownerActor, activity.ID)
	require.ErrorIs(t, err, apperror.ErrNotEditable)

	require.NoError(t, env.activities.Delete(ctx, suActor, activity.ID))

	_, err = env.activities.Get(ctx, activity.ID)
	require.ErrorIs(t, err, apperror.ErrActivityNotFound)

	err = env.activities.Delete(ctx, suActor, activity.ID)
	require.ErrorIs(t, err, apperror.ErrActivityNotFound)
}

func TestActivityServiceDeleteCascades(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()
	activity, detail := env.approvedActivity(t, 10)

	_, err := env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{{Student: "s-1", Points: 2}})
	require.NoError(t, err)

	require.NoError(t, env.activities.Delete(ctx, suActor, activity.ID))

	var remaining int64
	require.NoError(t, env.db.Model(&models.Ticket{}).Where("activity_id = ?", activity.ID).Count(&remaining).Error)
	require.Zero(t, remaining)
	require.NoError(t, env.db.Model(&models.ActivityDetail{}).Where("activity_id = ?", activity.ID).Count(&remaining).Error)
	require.Zero(t, remaining)

	var unscoped int64
	require.NoError(t, env.db.Unscoped().Model(&models.Ticket{}).Where("activity_id = ?", activity.ID).Count(&unscoped).Error)
	require.Equal(t, int64(1), unscoped)
}

func TestDetailServiceLifecycle(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()

	activity, err := env.activities.Create(ctx, ownerActor, dto.ActivityCreateRequest{Name: "Fair", Date: "2024-04-01"})
	require.NoError(t, err)

	maxPoints := 10
	detail, err := env.details.Create(ctx, ownerActor, activity.ID, dto.DetailCreateRequest{Name: "Booth", MaxPoints: &maxPoints})
	require.NoError(t, err)

	_, err = env.details.Create(ctx, otherOrgActor, activity.ID, dto.DetailCreateRequest{Name: "Booth", MaxPoints: &maxPoints})
	require.ErrorIs(t, err, apperror.ErrNotOwner)

	_, err = env.details.Create(ctx, ownerActor, activity.ID, dto.DetailCreateRequest{Name: "Booth"})
	require.ErrorIs(t, err, apperror.ErrValidation)

	// Points already held by a student bound how far the ceiling can drop.
	require.NoError(t, env.repos.Tickets.CreateBatch(ctx, []models.Ticket{{
		ActivityID: activity.ID,
		DetailID:   detail.ID,
		Student:    "s-1",
		Points:     6,
		Date:       activity.Date,
	}}))

	lower := 5
	_, err = env.details.Update(ctx, ownerActor, activity.ID, detail.ID, dto.DetailUpdateRequest{MaxPoints: &lower})
	require.ErrorIs(t, err, apperror.ErrPointsCeilingExceeded)

	lower = 6
	name := "Booth duty"
	updated, err := env.details.Update(ctx, ownerActor, activity.ID, detail.ID, dto.DetailUpdateRequest{Name: &name, MaxPoints: &lower})
	require.NoError(t, err)
	require.Equal(t, 6, updated.MaxPoints)
	require.Equal(t, "Booth duty", updated.Name)

	list, err := env.details.List(ctx, activity.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = env.details.Update(ctx, ownerActor, activity.ID, "missing", dto.DetailUpdateRequest{Name: &name})
	require.ErrorIs(t, err, apperror.ErrDetailNotFound)

	require.NoError(t, env.details.Delete(ctx, ownerActor, activity.ID, detail.ID))
	list, err = env.details.List(ctx, activity.ID)
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = env.details.List(ctx, "missing")
	require.ErrorIs(t, err, apperror.ErrActivityNotFound)
}

func TestActivityServiceReviewerAssignment(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()

	self := ownerActor.ID
	_, err := env.activities.Create(ctx, ownerActor, dto.ActivityCreateRequest{Name: "Fair", Date: "2024-04-01", Instructor: &self, Committee: &self})
	require.ErrorIs(t, err, apperror.ErrForbidden)

	activity, err := env.activities.Create(ctx, ownerActor, dto.ActivityCreateRequest{Name: "Fair", Date: "2024-04-01"})
	require.NoError(t, err)
	require.Equal(t, instructorActor.ID, activity.Instructor)

	_, err = env.activities.Update(ctx, ownerActor, activity.ID, dto.ActivityUpdateRequest{Committee: &self})
	require.ErrorIs(t, err, apperror.ErrForbidden)

	// Resending the assigned reviewer is not a reassignment.
	current := instructorActor.ID
	_, err = env.activities.Update(ctx, ownerActor, activity.ID, dto.ActivityUpdateRequest{Instructor: &current})
	require.NoError(t, err)

	unknown := "ghost"
	_, err = env.activities.Update(ctx, suActor, activity.ID, dto.ActivityUpdateRequest{Instructor: &unknown})
	require.ErrorIs(t, err, apperror.ErrInvalidReviewer)

	wrongType := otherOrgActor.ID
	_, err = env.activities.Update(ctx, suActor, activity.ID, dto.ActivityUpdateRequest{Committee: &wrongType})
	require.ErrorIs(t, err, apperror.ErrInvalidReviewer)

	_, err = env.activities.Update(ctx, suActor, activity.ID, dto.ActivityUpdateRequest{Committee: &self})
	require.ErrorIs(t, err, apperror.ErrInvalidReviewer)

	sameAccount := committeeActor.ID
	_, err = env.activities.Update(ctx, suActor, activity.ID, dto.ActivityUpdateRequest{Instructor: &sameAccount})
	require.ErrorIs(t, err, apperror.ErrInvalidReviewer)

	require.NoError(t, env.repos.Admins.Create(ctx, &models.Admin{ID: "ins-2", Name: "Mr Chen", Type: models.UserInstructor, PasswordHash: "x"}))
	replacement := "ins-2"
	updated, err := env.activities.Update(ctx, suActor, activity.ID, dto.ActivityUpdateRequest{Instructor: &replacement})
	require.NoError(t, err)
	require.Equal(t, "ins-2", updated.Instructor)
	require.Equal(t, committeeActor.ID, updated.Committee)
	require.Equal(t, ownerActor.ID, updated.Owner)
}
