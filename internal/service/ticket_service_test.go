package service

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/events"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/workflow"
)

func TestTicketServiceEnforcesCeiling(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()
	activity, detail := env.approvedActivity(t, 10)

	issued, err := env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{
		{Student: "s-1", Type: models.TicketDaily, Points: 5},
	})
	require.NoError(t, err)
	require.Len(t, issued, 1)
	require.Equal(t, activity.ID, issued[0].ActivityID)
	require.True(t, issued[0].Date.Equal(activity.Date))

	_, err = env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{
		{Student: "s-1", Type: models.TicketDaily, Points: 6},
	})
	require.ErrorIs(t, err, apperror.ErrPointsCeilingExceeded)
	require.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	tickets, err := env.tickets.List(ctx, activity.ID, "")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	require.Contains(t, env.publisher.names(), events.TicketsIssued)
}

func TestTicketServiceRejectsWholeBatch(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()
	activity, detail := env.approvedActivity(t, 10)

	_, err := env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{
		{Student: "s-1", Points: 4},
		{Student: "s-2", Points: 7},
		{Student: "s-2", Points: 4},
	})
	require.ErrorIs(t, err, apperror.ErrPointsCeilingExceeded)

	_, err = env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{
		{Student: "s-1", Points: 4},
		{Student: "ghost", Points: 1},
	})
	require.ErrorIs(t, err, apperror.ErrStudentNotFound)

	_, err = env.tickets.Issue(ctx, ownerActor, activity.ID, "", []dto.TicketEntry{
		{DetailID: "missing", Student: "s-1", Points: 1},
	})
	require.ErrorIs(t, err, apperror.ErrDetailNotFound)

	_, err = env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{
		{Student: "s-1", Points: 0},
	})
	require.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, nil)
	require.ErrorIs(t, err, apperror.ErrValidation)

	tickets, err := env.tickets.List(ctx, activity.ID, detail.ID)
	require.NoError(t, err)
	require.Empty(t, tickets)
}

func TestTicketServiceRejectsOverflowingPoints(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()
	activity, detail := env.approvedActivity(t, 10)

	issued, err := env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{
		{Student: "s-1", Points: 5},
	})
	require.NoError(t, err)

	_, err = env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{
		{Student: "s-1", Points: math.MaxInt - 2},
	})
	require.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{
		{Student: "s-2", Points: math.MaxInt},
		{Student: "s-2", Points: math.MaxInt},
	})
	require.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.tickets.Update(ctx, ownerActor, activity.ID, issued[0].ID, dto.TicketUpdateRequest{
		DetailID: detail.ID,
		Student:  "s-1",
		Points:   math.MaxInt,
	})
	require.ErrorIs(t, err, apperror.ErrValidation)

	// Batches built without request validation still can not wrap the sum.
	batch := []models.Ticket{
		{ActivityID: activity.ID, DetailID: detail.ID, Student: "s-1", Points: math.MaxInt - 2},
		{ActivityID: activity.ID, DetailID: detail.ID, Student: "s-1", Points: math.MaxInt - 2},
	}
	err = checkBatch(ctx, env.repos, activity.ID, batch)
	require.ErrorIs(t, err, apperror.ErrPointsCeilingExceeded)

	err = checkBatch(ctx, env.repos, activity.ID, []models.Ticket{
		{ActivityID: activity.ID, DetailID: detail.ID, Student: "s-1", Points: math.MinInt},
	})
	require.ErrorIs(t, err, apperror.ErrValidation)

	require.Equal(t, math.MaxInt, addPoints(math.MaxInt-2, math.MaxInt-2))
	require.Equal(t, 7, addPoints(5, 2))

	tickets, err := env.tickets.List(ctx, activity.ID, "")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	require.Equal(t, 5, tickets[0].Points)
}

func TestTicketServiceDetailMustBelongToActivity(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()
	first, _ := env.approvedActivity(t, 10)
	_, foreign := env.approvedActivity(t, 10)

	_, err := env.tickets.Issue(ctx, ownerActor, first.ID, foreign.ID, []dto.TicketEntry{
		{Student: "s-1", Points: 1},
	})
	require.ErrorIs(t, err, apperror.ErrDetailMismatch)

	_, err = env.tickets.List(ctx, first.ID, foreign.ID)
	require.ErrorIs(t, err, apperror.ErrDetailMismatch)
}

func TestTicketServiceAuthorizationAndState(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()

	draft, err := env.activities.Create(ctx, ownerActor, dto.ActivityCreateRequest{Name: "Draft", Date: "2024-04-01"})
	require.NoError(t, err)
	_, err = env.tickets.Issue(ctx, ownerActor, draft.ID, "", []dto.TicketEntry{{DetailID: "x", Student: "s-1", Points: 1}})
	require.ErrorIs(t, err, apperror.ErrIssuanceClosed)

	activity, detail := env.approvedActivity(t, 10)
	entries := []dto.TicketEntry{{Student: "s-1", Points: 1}}

	_, err = env.tickets.Issue(ctx, otherOrgActor, activity.ID, detail.ID, entries)
	require.ErrorIs(t, err, apperror.ErrNotOwner)

	_, err = env.tickets.Issue(ctx, suActor, activity.ID, detail.ID, entries)
	require.NoError(t, err)

	_, err = env.tickets.Issue(ctx, ownerActor, "missing", detail.ID, entries)
	require.ErrorIs(t, err, apperror.ErrActivityNotFound)
}

func TestTicketServiceConcurrentBatchesRespectCeiling(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()
	activity, detail := env.approvedActivity(t, 10)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{
				{Student: "s-1", Points: 6},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, rejected := 0, 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, apperror.ErrPointsCeilingExceeded)
		rejected++
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, rejected)
}

func TestTicketServiceUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()
	activity, detail := env.approvedActivity(t, 10)

	issued, err := env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{
		{Student: "s-1", Points: 8},
	})
	require.NoError(t, err)
	ticketID := issued[0].ID

	updated, err := env.tickets.Update(ctx, ownerActor, activity.ID, ticketID, dto.TicketUpdateRequest{
		DetailID: detail.ID,
		Student:  "s-1",
		Type:     models.TicketPersonality,
		Points:   10,
		Date:     "2024-04-02",
	})
	require.NoError(t, err)
	require.Equal(t, 10, updated.Points)
	require.Equal(t, models.TicketPersonality, updated.Type)
	require.Equal(t, 2, updated.Date.Day())

	_, err = env.tickets.Update(ctx, ownerActor, activity.ID, ticketID, dto.TicketUpdateRequest{
		DetailID: detail.ID,
		Student:  "s-1",
		Points:   11,
	})
	require.ErrorIs(t, err, apperror.ErrPointsCeilingExceeded)

	_, err = env.tickets.Update(ctx, ownerActor, activity.ID, "missing", dto.TicketUpdateRequest{
		DetailID: detail.ID,
		Student:  "s-1",
		Points:   1,
	})
	require.ErrorIs(t, err, apperror.ErrTicketNotFound)

	require.NoError(t, env.tickets.Delete(ctx, ownerActor, activity.ID, ticketID))
	err = env.tickets.Delete(ctx, ownerActor, activity.ID, ticketID)
	require.ErrorIs(t, err, apperror.ErrTicketNotFound)

	// Deleted tickets release their points.
	_, err = env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{
		{Student: "s-1", Points: 10},
	})
	require.NoError(t, err)
}

func TestTicketServiceStudentTickets(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()
	activity, detail := env.approvedActivity(t, 10)

	_, err := env.tickets.Issue(ctx, ownerActor, activity.ID, detail.ID, []dto.TicketEntry{
		{Student: "s-1", Type: models.TicketDaily, Points: 2, Date: "2024-04-01"},
		{Student: "s-1", Type: models.TicketPersonality, Points: 3, Date: "2024-04-03"},
		{Student: "s-2", Type: models.TicketDaily, Points: 4},
	})
	require.NoError(t, err)

	all, err := env.tickets.StudentTickets(ctx, studentActor, dto.StudentTicketQuery{Student: "s-2"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, ticket := range all {
		require.Equal(t, "s-1", ticket.Student)
		require.NotNil(t, ticket.Activity)
		require.Equal(t, activity.ID, ticket.Activity.ID)
	}

	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start
	firstDay, err := env.tickets.StudentTickets(ctx, studentActor, dto.StudentTicketQuery{StartDate: &start, EndDate: &end})
	require.NoError(t, err)
	require.Len(t, firstDay, 1)
	require.Equal(t, 2, firstDay[0].Points)

	personality := models.TicketPersonality
	typed, err := env.tickets.StudentTickets(ctx, studentActor, dto.StudentTicketQuery{Type: &personality})
	require.NoError(t, err)
	require.Len(t, typed, 1)

	forAdmin, err := env.tickets.StudentTickets(ctx, suActor, dto.StudentTicketQuery{Student: "s-2"})
	require.NoError(t, err)
	require.Len(t, forAdmin, 1)

	_, err = env.tickets.StudentTickets(ctx, suActor, dto.StudentTicketQuery{})
	require.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestTicketServiceImportCSV(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()
	activity, detail := env.approvedActivity(t, 10)

	content := []byte("detailId,student,type,points,date\n" +
		detail.ID + ",s-1,daily,4,2024-04-01\n" +
		detail.ID + ", s-2 ,1,5\n")
	issued, err := env.tickets.Import(ctx, ownerActor, activity.ID, newTestFileHeader(t, "tickets.csv", content))
	require.NoError(t, err)
	require.Len(t, issued, 2)
	require.Equal(t, "s-2", issued[1].Student)
	require.Equal(t, models.TicketPersonality, issued[1].Type)

	_, err = env.tickets.Import(ctx, ownerActor, activity.ID, newTestFileHeader(t, "tickets.csv", []byte(detail.ID+",s-1,daily,7\n")))
	require.ErrorIs(t, err, apperror.ErrPointsCeilingExceeded)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err = env.tickets.Import(ctx, ownerActor, activity.ID, newTestFileHeader(t, "tickets.csv", png))
	require.ErrorIs(t, err, apperror.ErrValidation)
	require.Equal(t, ErrImportType.Message, apperror.MessageOf(err))
}

func TestParseTicketCSV(t *testing.T) {
	entries, err := ParseTicketCSV([]byte("\xef\xbb\xbfd-1,s-1,personality,3\n\nd-2,s-2,0,1,2024-04-02\n"))
	require.NoError(t, err)
	require.Equal(t, []dto.TicketEntry{
		{DetailID: "d-1", Student: "s-1", Type: models.TicketPersonality, Points: 3},
		{DetailID: "d-2", Student: "s-2", Type: models.TicketDaily, Points: 1, Date: "2024-04-02"},
	}, entries)

	_, err = ParseTicketCSV([]byte("d-1,s-1,weekly,3\n"))
	require.ErrorContains(t, err, "line 1")

	_, err = ParseTicketCSV([]byte("d-1,s-1,daily\n"))
	require.ErrorIs(t, err, apperror.ErrValidation)

	_, err = ParseTicketCSV([]byte("detailId,student,type,points\n"))
	require.ErrorIs(t, err, apperror.ErrValidation)
}
