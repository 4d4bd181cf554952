package utils_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/utils"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Data    map[string]string      `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
}

func TestSendSuccessWithMetaIncludesMetaAndDefaults(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return utils.SendSuccessWithMeta(c, "", map[string]string{"hello": "world"}, map[string]int{"total": 1})
	})

	resp := performRequest(t, app, http.MethodGet, "/")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload envelope
	decode(t, resp, &payload)
	require.True(t, payload.Success)
	require.Equal(t, "success", payload.Message)
	require.Equal(t, "world", payload.Data["hello"])
	require.Equal(t, float64(1), payload.Meta["total"])
	require.Empty(t, payload.Error)
}

func TestSendAppErrorMapsKinds(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"validation", apperror.ErrPointsCeilingExceeded.Detail("too many"), fiber.StatusBadRequest, "points_ceiling_exceeded", "too many"},
		{"unauthenticated", apperror.ErrUnauthenticated, fiber.StatusUnauthorized, "unauthenticated", "authentication required"},
		{"authorization", apperror.ErrNotReviewer, fiber.StatusForbidden, "not_reviewer", "actor is not an assigned reviewer"},
		{"not found", apperror.ErrActivityNotFound, fiber.StatusNotFound, "activity_not_found", "activity not found"},
		{"conflict", apperror.ErrAlreadyDecided, fiber.StatusConflict, "already_decided", "review has already been decided"},
		{"unavailable", apperror.ErrUnavailable.Wrap(errors.New("dial tcp")), fiber.StatusServiceUnavailable, "unavailable", "service temporarily unavailable"},
		{"internal", errors.New("pq: secret detail"), fiber.StatusInternalServerError, "internal_error", "internal server error"},
		{"fiber", fiber.NewError(fiber.StatusRequestEntityTooLarge, "too big"), fiber.StatusRequestEntityTooLarge, "http_error", "too big"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return utils.SendAppError(c, tc.err)
			})

			resp := performRequest(t, app, http.MethodGet, "/")
			require.Equal(t, tc.status, resp.StatusCode)

			var payload envelope
			decode(t, resp, &payload)
			require.False(t, payload.Success)
			require.Equal(t, tc.code, payload.Error)
			require.Equal(t, tc.message, payload.Message)
			require.Nil(t, payload.Data)
		})
	}
}

func performRequest(t *testing.T, app *fiber.App, method, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
