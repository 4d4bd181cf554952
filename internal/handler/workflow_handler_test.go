package handler_test

import (
	"bytes"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
)

func createApprovedActivity(t *testing.T, server *testServer, maxPoints int) (dto.ActivityResponse, dto.DetailResponse) {
	t.Helper()

	resp, payload := server.do(t, http.MethodPut, "/activity/new", "org-1", dto.ActivityCreateRequest{
		Name:     "Science Fair",
		Location: "Hall B",
		Date:     "2026-03-14",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, payload.Message)
	var activity dto.ActivityResponse
	decodeData(t, payload, &activity)

	resp, payload = server.do(t, http.MethodPut, "/activity/"+activity.ID+"/detail/new", "org-1", dto.DetailCreateRequest{
		Name:      "Volunteering",
		MaxPoints: &maxPoints,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, payload.Message)
	var detail dto.DetailResponse
	decodeData(t, payload, &detail)

	resp, payload = server.do(t, http.MethodPut, "/activity/"+activity.ID+"/review/new", "org-1", nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, payload.Message)
	var review dto.ReviewResponse
	decodeData(t, payload, &review)

	approve := true
	for _, reviewer := range []string{"ins-1", "com-1"} {
		resp, payload = server.do(t, http.MethodPut, "/activity/"+activity.ID+"/review/"+review.ID, reviewer,
			dto.ReviewDecisionRequest{State: &approve, Comment: "looks good"})
		require.Equal(t, fiber.StatusOK, resp.StatusCode, payload.Message)
	}

	return activity, detail
}

func TestActivityApprovalAndTicketCeilingOverHTTP(t *testing.T) {
	server := newTestServer(t)
	activity, detail := createApprovedActivity(t, server, 10)

	resp, _ := server.do(t, http.MethodGet, "/activity/"+activity.ID, "org-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	requireContract(t, "activity.schema.json", resp)

	_, payload := server.do(t, http.MethodGet, "/activity/"+activity.ID, "org-1", nil)
	var current dto.ActivityResponse
	decodeData(t, payload, &current)
	require.Equal(t, models.ActivityApproved, current.State)

	batch := []dto.TicketEntry{{DetailID: detail.ID, Student: "s-1", Type: models.TicketDaily, Points: 5}}
	resp, payload = server.do(t, http.MethodPut, "/activity/"+activity.ID+"/ticket/new", "org-1", batch)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, payload.Message)

	batch[0].Points = 6
	resp, payload = server.do(t, http.MethodPut, "/activity/"+activity.ID+"/detail/"+detail.ID+"/ticket/new", "org-1", batch)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "points_ceiling_exceeded", payload.Error)
	requireContract(t, "error.schema.json", resp)

	resp, _ = server.do(t, http.MethodGet, "/activity/"+activity.ID+"/ticket", "org-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	requireContract(t, "ticket_list.schema.json", resp)

	_, payload = server.do(t, http.MethodGet, "/activity/"+activity.ID+"/detail/"+detail.ID+"/ticket", "org-1", nil)
	var tickets []dto.TicketResponse
	decodeData(t, payload, &tickets)
	require.Len(t, tickets, 1)
	require.Equal(t, 5, tickets[0].Points)

	resp, payload = server.do(t, http.MethodGet, "/user/student/ticket?startDate=2026-03-01&endDate=2026-03-14&type=0", "s-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, payload.Message)
	var own []dto.TicketResponse
	decodeData(t, payload, &own)
	require.Len(t, own, 1)
	require.NotNil(t, own[0].Activity)
}

func TestOwnerCanNotAssignThemselvesAsReviewer(t *testing.T) {
	server := newTestServer(t)

	self := "org-1"
	resp, payload := server.do(t, http.MethodPut, "/activity/new", "org-1", dto.ActivityCreateRequest{
		Name:       "Bake Sale",
		Date:       "2026-03-14",
		Instructor: &self,
		Committee:  &self,
	})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode, payload.Message)
	require.Equal(t, "forbidden", payload.Error)

	resp, payload = server.do(t, http.MethodPut, "/activity/new", "root", dto.ActivityCreateRequest{
		Name:       "Bake Sale",
		Date:       "2026-03-14",
		Instructor: &self,
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode, payload.Message)
	require.Equal(t, "invalid_reviewer", payload.Error)
}

func TestOversizedTicketPointsOverHTTP(t *testing.T) {
	server := newTestServer(t)
	activity, detail := createApprovedActivity(t, server, 10)

	batch := []dto.TicketEntry{
		{DetailID: detail.ID, Student: "s-1", Type: models.TicketDaily, Points: math.MaxInt - 1},
		{DetailID: detail.ID, Student: "s-1", Type: models.TicketDaily, Points: math.MaxInt - 1},
	}
	resp, payload := server.do(t, http.MethodPut, "/activity/"+activity.ID+"/ticket/new", "org-1", batch)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation_failed", payload.Error)

	_, payload = server.do(t, http.MethodGet, "/activity/"+activity.ID+"/ticket", "org-1", nil)
	var tickets []dto.TicketResponse
	decodeData(t, payload, &tickets)
	require.Empty(t, tickets)
}

func TestReviewDecisionErrorsOverHTTP(t *testing.T) {
	server := newTestServer(t)

	_, payload := server.do(t, http.MethodPut, "/activity/new", "org-1", dto.ActivityCreateRequest{Name: "Debate", Date: "2026-04-01"})
	var activity dto.ActivityResponse
	decodeData(t, payload, &activity)

	resp, payload := server.do(t, http.MethodPut, "/activity/"+activity.ID+"/review/new", "org-1", nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	requireContract(t, "review.schema.json", resp)
	var review dto.ReviewResponse
	decodeData(t, payload, &review)

	reject := false
	path := "/activity/" + activity.ID + "/review/" + review.ID

	resp, payload = server.do(t, http.MethodPut, path, "com-1", dto.ReviewDecisionRequest{State: &reject})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_transition", payload.Error)

	resp, payload = server.do(t, http.MethodPut, path, "org-1", dto.ReviewDecisionRequest{State: &reject})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Equal(t, "not_reviewer", payload.Error)

	resp, payload = server.do(t, http.MethodPut, path, "ins-1", map[string]string{"comment": "missing state"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation_failed", payload.Error)

	resp, _ = server.do(t, http.MethodPut, path, "ins-1", dto.ReviewDecisionRequest{State: &reject, Comment: "<b>needs</b> a budget"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, payload = server.do(t, http.MethodPut, path, "ins-1", dto.ReviewDecisionRequest{State: &reject})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, "already_decided", payload.Error)

	_, payload = server.do(t, http.MethodGet, "/activity/"+activity.ID+"/review", "org-1", nil)
	var history []dto.ReviewResponse
	decodeData(t, payload, &history)
	require.Len(t, history, 1)
	require.Equal(t, models.ReviewInstructorRejected, history[0].State)
	require.Equal(t, "needs a budget", history[0].InstructorComment)
}

func TestReviewerQueueIsNotShadowedByActivityID(t *testing.T) {
	server := newTestServer(t)

	_, payload := server.do(t, http.MethodPut, "/activity/new", "org-1", dto.ActivityCreateRequest{Name: "Choir", Date: "2026-05-01"})
	var activity dto.ActivityResponse
	decodeData(t, payload, &activity)
	resp, _ := server.do(t, http.MethodPut, "/activity/"+activity.ID+"/review/new", "org-1", nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, payload = server.do(t, http.MethodGet, "/activity/review/reviewer?count=true&type=0&state=0", "ins-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, payload.Message)
	var count dto.ReviewCountResponse
	decodeData(t, payload, &count)
	require.Equal(t, int64(1), count.Count)

	resp, payload = server.do(t, http.MethodGet, "/activity/review/reviewer?limit=5", "ins-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var queue []dto.ReviewResponse
	decodeData(t, payload, &queue)
	require.Len(t, queue, 1)

	resp, payload = server.do(t, http.MethodGet, "/activity/review/reviewer?count=maybe", "ins-1", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation_failed", payload.Error)

	resp, _ = server.do(t, http.MethodGet, "/activity/review/reviewer", "s-1", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestTicketCSVImportOverHTTP(t *testing.T) {
	server := newTestServer(t)
	activity, detail := createApprovedActivity(t, server, 10)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "tickets.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("detailId,student,type,points\n" + detail.ID + ",s-1,daily,3\n" + detail.ID + ",s-1,personality,2\n"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPut, "/activity/"+activity.ID+"/ticket/import", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", server.tokens["org-1"])
	resp, payload := server.send(t, req)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, payload.Message)

	var tickets []dto.TicketResponse
	decodeData(t, payload, &tickets)
	require.Len(t, tickets, 2)

	req = httptest.NewRequest(http.MethodPut, "/activity/"+activity.ID+"/ticket/import", nil)
	req.Header.Set("Authorization", server.tokens["org-1"])
	resp, payload = server.send(t, req)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation_failed", payload.Error)
}

func TestActivityListAndNotFound(t *testing.T) {
	server := newTestServer(t)

	for _, name := range []string{"One", "Two", "Three"} {
		resp, _ := server.do(t, http.MethodPut, "/activity/new", "org-1", dto.ActivityCreateRequest{Name: name, Date: "2026-06-01"})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}

	resp, payload := server.do(t, http.MethodGet, "/activity?limit=2&offset=0&state=0", "org-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var activities []dto.ActivityResponse
	decodeData(t, payload, &activities)
	require.Len(t, activities, 2)
	var meta dto.ListMeta
	require.NoError(t, jsonUnmarshal(payload.Meta, &meta))
	require.Equal(t, int64(3), meta.Total)

	resp, payload = server.do(t, http.MethodGet, "/activity?state=9", "org-1", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation_failed", payload.Error)

	resp, payload = server.do(t, http.MethodGet, "/activity/does-not-exist", "org-1", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "activity_not_found", payload.Error)

	resp, payload = server.do(t, http.MethodGet, "/activity", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthenticated", payload.Error)
}
