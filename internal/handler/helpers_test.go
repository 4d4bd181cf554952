package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/activity-ticket-api/internal/config"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/events"
	"github.com/noah-isme/activity-ticket-api/internal/handler"
	"github.com/noah-isme/activity-ticket-api/internal/middleware"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
	"github.com/noah-isme/activity-ticket-api/internal/router"
	"github.com/noah-isme/activity-ticket-api/internal/service"
	"github.com/noah-isme/activity-ticket-api/internal/utils"
	"github.com/noah-isme/activity-ticket-api/internal/workflow"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
}

type testServer struct {
	app    *fiber.App
	db     *gorm.DB
	auth   service.AuthService
	admins service.AdminService
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	redisServer, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(redisServer.Close)
	client := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := zerolog.Nop()
	policy := workflow.Policy{AllowResubmission: true}
	validate := service.NewValidator()
	repos := repository.NewRepositories(db)
	uow := repository.NewUnitOfWork(db)
	publisher := events.Nop{}

	audit := service.NewAuditService(repos.AuditLogs, log)
	auth := service.NewAuthService(repos.Admins, service.NewTokenDenylist(client), "handler-secret", time.Hour, validate, log)
	admins := service.NewAdminService(uow, repos.Admins, repos.Students, audit, validate, log)
	reviewCache := service.NewReviewCountCache(client, time.Minute, log)
	provider := newIdentityProvider(t)
	studentAuth := service.NewStudentAuthService(service.StudentSignInConfig{
		OAuth2: oauth2.Config{
			ClientID:     "tickets-web",
			ClientSecret: "provider-secret",
			Endpoint:     oauth2.Endpoint{TokenURL: provider.URL + "/oauth/token", AuthStyle: oauth2.AuthStyleInParams},
		},
		UserInfoURL: provider.URL + "/api/me",
		HTTPClient:  provider.Client(),
	}, repos.Students, auth, audit, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return utils.SendAppError(c, err)
		},
	})
	middleware.Register(app, middleware.Config{Logger: &log, RequestTimeout: 5 * time.Second})
	router.Register(app, config.Config{AppName: "Activity Ticket API", AppEnv: "test"}, router.Dependencies{
		ActivityHandler: handler.NewActivityHandler(service.NewActivityService(uow, repos.Activities, repos.Admins, reviewCache, audit, validate, log), log),
		DetailHandler:   handler.NewDetailHandler(service.NewDetailService(uow, repos.Activities, repos.Details, audit, validate, log), log),
		TicketHandler: handler.NewTicketHandler(service.NewTicketService(uow, repos.Activities, repos.Details, repos.Tickets,
			policy, publisher, audit, validate, 1<<20, log), log),
		ReviewHandler: handler.NewReviewHandler(service.NewReviewService(uow, repos.Activities, repos.Reviews, policy,
			reviewCache, publisher, audit, validate, log), log),
		AuthHandler:        handler.NewAuthHandler(auth, log),
		StudentAuthHandler: handler.NewStudentAuthHandler(studentAuth, log),
		UserHandler:        handler.NewUserHandler(admins, service.NewStudentService(uow, audit, validate, log), log),
		AuditHandler:       handler.NewAuditHandler(audit, log),
		JWTMiddleware:      middleware.JWTProtected(auth),
		Audit:              audit,
	})

	server := &testServer{app: app, db: db, auth: auth, admins: admins, tokens: map[string]string{}}
	server.seed(t)
	return server
}

// newIdentityProvider fakes the school SSO. A code of the form "code-<id>"
// exchanges for a token whose profile names student <id>.
func newIdentityProvider(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		code := r.FormValue("code")
		if r.FormValue("client_id") != "tickets-web" || !strings.HasPrefix(code, "code-") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "at-" + strings.TrimPrefix(code, "code-"),
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		access := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !strings.HasPrefix(access, "at-") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": strings.TrimPrefix(access, "at-")})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func (s *testServer) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	accounts := []dto.AdminCreateRequest{
		{ID: "root", Name: "Root", Type: models.UserSU, Password: "root-password"},
		{ID: "org-1", Name: "Science Club", Type: models.UserOrg, Instructor: "ins-1", Committee: "com-1", Password: "org-password"},
		{ID: "ins-1", Name: "Ms Rivera", Type: models.UserInstructor, Password: "ins-password"},
		{ID: "com-1", Name: "Student Council", Type: models.UserCommittee, Password: "com-password"},
	}
	for _, account := range accounts {
		_, _, err := s.admins.EnsureAdmin(ctx, account)
		require.NoError(t, err)
		token, _, err := s.auth.IssueToken(account.ID, account.Type)
		require.NoError(t, err)
		s.tokens[account.ID] = token
	}

	school := models.School{Name: "North High"}
	require.NoError(t, s.db.Create(&school).Error)
	class := models.Class{Name: "10A", SchoolID: school.ID}
	require.NoError(t, s.db.Create(&class).Error)
	require.NoError(t, s.db.Create(&models.Student{ID: "s-1", Name: "Ana", ClassID: &class.ID}).Error)

	token, _, err := s.auth.IssueToken("s-1", models.UserStudent)
	require.NoError(t, err)
	s.tokens["s-1"] = token
}

func (s *testServer) do(t *testing.T, method, path, as string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := s.tokens[as]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload envelope
	require.NoError(t, json.Unmarshal(raw, &payload), string(raw))
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return resp, payload
}

func decodeData(t *testing.T, payload envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(payload.Data, target))
}

func requireContract(t *testing.T, schemaFile string, resp *http.Response) {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("testdata", schemaFile))
	require.NoError(t, err)
	schema, err := jsonschema.NewCompiler().Compile("file://" + schemaPath)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var document interface{}
	require.NoError(t, json.Unmarshal(raw, &document))
	require.NoError(t, schema.Validate(document))
}
