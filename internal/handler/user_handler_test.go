package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
)

func jsonUnmarshal(raw json.RawMessage, target interface{}) error {
	return json.Unmarshal(raw, target)
}

func TestSignInProfileAndSignOut(t *testing.T) {
	server := newTestServer(t)

	resp, payload := server.do(t, http.MethodPost, "/user/admin/sign-in", "", dto.SignInRequest{Name: "Science Club", Password: "wrong-password"})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_credentials", payload.Error)

	resp, payload = server.do(t, http.MethodPost, "/user/admin/sign-in", "", dto.SignInRequest{Name: "Science Club", Password: "org-password"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, payload.Message)
	var signIn dto.SignInResponse
	decodeData(t, payload, &signIn)
	require.NotEmpty(t, signIn.Token)
	require.Equal(t, "org-1", signIn.User.ID)

	server.tokens["session"] = signIn.Token

	resp, payload = server.do(t, http.MethodGet, "/user/me", "session", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var me dto.User
	decodeData(t, payload, &me)
	require.Equal(t, dto.UserKindAdmin, me.Kind())

	resp, _ = server.do(t, http.MethodPost, "/user/sign-out", "session", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, payload = server.do(t, http.MethodGet, "/user/me", "session", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthenticated", payload.Error)
}

func TestStudentProfile(t *testing.T) {
	server := newTestServer(t)

	resp, payload := server.do(t, http.MethodGet, "/user/me", "s-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var me dto.User
	decodeData(t, payload, &me)
	require.Equal(t, dto.UserKindStudent, me.Kind())
}

func TestStudentOAuth2SignIn(t *testing.T) {
	server := newTestServer(t)

	resp, payload := server.do(t, http.MethodGet, "/user/oauth2/sign-in?code=code-s-1", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, payload.Message)
	var signIn dto.StudentSignInResponse
	decodeData(t, payload, &signIn)
	require.NotEmpty(t, signIn.Token)
	require.Equal(t, dto.UserKindStudent, signIn.User.Kind())
	require.Equal(t, "s-1", signIn.User.Student.ID)
	require.Equal(t, "10A", signIn.User.Student.Class)
	require.Equal(t, "North High", signIn.User.Student.School)

	server.tokens["student-session"] = signIn.Token
	resp, payload = server.do(t, http.MethodGet, "/user/student/ticket", "student-session", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, payload.Message)
	resp, payload = server.do(t, http.MethodGet, "/user/admin", "student-session", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode, payload.Message)

	resp, payload = server.do(t, http.MethodGet, "/user/oauth2/sign-in?code=code-s-404", "", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Equal(t, "forbidden", payload.Error)

	resp, payload = server.do(t, http.MethodGet, "/user/oauth2/sign-in?code=stolen", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_credentials", payload.Error)

	resp, payload = server.do(t, http.MethodGet, "/user/oauth2/sign-in", "", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation_failed", payload.Error)
}

func TestAdminManagementRoutes(t *testing.T) {
	server := newTestServer(t)

	create := dto.AdminCreateRequest{ID: "org-9", Name: "Robotics", Type: models.UserLocalOrg, Password: "robotics-pass"}

	resp, payload := server.do(t, http.MethodPut, "/user/admin/new", "org-1", create)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Equal(t, "forbidden", payload.Error)

	resp, payload = server.do(t, http.MethodPut, "/user/admin/new", "root", create)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, payload.Message)

	resp, payload = server.do(t, http.MethodPut, "/user/admin/new", "root", create)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, "duplicate", payload.Error)

	resp, payload = server.do(t, http.MethodGet, "/user/admin?type=2", "org-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var admins []dto.AdminResponse
	decodeData(t, payload, &admins)
	require.Len(t, admins, 1)
	require.Equal(t, "org-9", admins[0].ID)

	renamed := "Robotics Club"
	resp, payload = server.do(t, http.MethodPut, "/user/admin/update/org-9", "root", dto.AdminUpdateRequest{Name: &renamed})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, payload.Message)

	resp, payload = server.do(t, http.MethodGet, "/user/admin/org-9", "ins-1", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var fetched dto.AdminResponse
	decodeData(t, payload, &fetched)
	require.Equal(t, renamed, fetched.Name)

	resp, _ = server.do(t, http.MethodDelete, "/user/admin/org-9", "root", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, payload = server.do(t, http.MethodGet, "/user/admin/org-9", "root", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "user_not_found", payload.Error)

	resp, _ = server.do(t, http.MethodGet, "/user/admin", "s-1", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAuditAndStudentImportRequireSU(t *testing.T) {
	server := newTestServer(t)

	resp, _ := server.do(t, http.MethodGet, "/audit", "org-1", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = server.do(t, http.MethodPut, "/user/student/import", "org-1", dto.StudentImportRequest{})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, payload := server.do(t, http.MethodPut, "/user/admin/new", "org-1", dto.AdminCreateRequest{ID: "x", Name: "X", Type: models.UserOrg, Password: "password-x"})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode, payload.Message)

	resp, payload = server.do(t, http.MethodGet, "/audit?action=access.denied", "root", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var entries []dto.AuditLogResponse
	decodeData(t, payload, &entries)
	require.NotEmpty(t, entries)
	require.Equal(t, "org-1", entries[0].ActorID)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp, payload := server.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.True(t, payload.Success)
	require.Equal(t, "Activity Ticket API", resp.Header.Get("X-Application"))
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
}
