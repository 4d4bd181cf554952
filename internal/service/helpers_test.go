package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
	"github.com/noah-isme/activity-ticket-api/internal/workflow"
)

var (
	suActor         = Actor{ID: "root", Role: "su"}
	ownerActor      = Actor{ID: "org-1", Role: "org"}
	otherOrgActor   = Actor{ID: "org-2", Role: "org"}
	instructorActor = Actor{ID: "ins-1", Role: "instructor"}
	committeeActor  = Actor{ID: "com-1", Role: "committee"}
	studentActor    = Actor{ID: "s-1", Role: "student"}
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type publishedEvent struct {
	name string
	data interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{name: event, data: data})
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.events))
	for _, event := range p.events {
		names = append(names, event.name)
	}
	return names
}

type testEnv struct {
	db         *gorm.DB
	repos      repository.Repositories
	redis      *miniredis.Miniredis
	publisher  *recordingPublisher
	audit      AuditService
	activities ActivityService
	details    DetailService
	reviews    ReviewService
	tickets    TicketService
	admins     AdminService
	students   StudentService
	auth       AuthService
}

func newTestEnv(t *testing.T, policy workflow.Policy) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := testLogger()
	repos := repository.NewRepositories(db)
	uow := repository.NewUnitOfWork(db)
	validate := NewValidator()
	publisher := &recordingPublisher{}
	audit := NewAuditService(repos.AuditLogs, log)
	cache := NewReviewCountCache(client, time.Minute, log)

	env := &testEnv{
		db:         db,
		repos:      repos,
		redis:      server,
		publisher:  publisher,
		audit:      audit,
		activities: NewActivityService(uow, repos.Activities, repos.Admins, cache, audit, validate, log),
		details:    NewDetailService(uow, repos.Activities, repos.Details, audit, validate, log),
		reviews: NewReviewService(uow, repos.Activities, repos.Reviews, policy,
			cache, publisher, audit, validate, log),
		tickets: NewTicketService(uow, repos.Activities, repos.Details, repos.Tickets, policy,
			publisher, audit, validate, 1<<20, log),
		admins:   NewAdminService(uow, repos.Admins, repos.Students, audit, validate, log),
		students: NewStudentService(uow, audit, validate, log),
		auth:     NewAuthService(repos.Admins, NewTokenDenylist(client), "test-secret", time.Hour, validate, log),
	}
	env.seedDirectory(t)
	return env
}

func (e *testEnv) seedDirectory(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	admins := []models.Admin{
		{ID: suActor.ID, Name: "Root", Type: models.UserSU, PasswordHash: "x"},
		{ID: ownerActor.ID, Name: "Science Club", Type: models.UserOrg, Instructor: instructorActor.ID, Committee: committeeActor.ID, PasswordHash: "x"},
		{ID: otherOrgActor.ID, Name: "Art Club", Type: models.UserOrg, Instructor: instructorActor.ID, Committee: committeeActor.ID, PasswordHash: "x"},
		{ID: instructorActor.ID, Name: "Ms Rivera", Type: models.UserInstructor, PasswordHash: "x"},
		{ID: committeeActor.ID, Name: "Student Council", Type: models.UserCommittee, PasswordHash: "x"},
	}
	for i := range admins {
		require.NoError(t, e.repos.Admins.Create(ctx, &admins[i]))
	}

	require.NoError(t, e.repos.Students.Import(ctx, repository.StudentImport{
		Schools: []string{"North High"},
		Classes: []repository.ClassImport{{Name: "10A", School: "North High"}},
		Students: []repository.StudentRow{
			{ID: "s-1", Name: "Ana", Class: "10A"},
			{ID: "s-2", Name: "Budi", Class: "10A"},
		},
	}))
}

// approvedActivity walks a fresh activity through both review stages and
// returns it together with a detail capped at maxPoints.
func (e *testEnv) approvedActivity(t *testing.T, maxPoints int) (dto.ActivityResponse, dto.DetailResponse) {
	t.Helper()
	ctx := context.Background()

	activity, err := e.activities.Create(ctx, ownerActor, dto.ActivityCreateRequest{Name: "Science fair", Date: "2024-04-01"})
	require.NoError(t, err)
	detail, err := e.details.Create(ctx, ownerActor, activity.ID, dto.DetailCreateRequest{Name: "Attendance", MaxPoints: &maxPoints})
	require.NoError(t, err)

	review, err := e.reviews.Submit(ctx, ownerActor, activity.ID)
	require.NoError(t, err)
	_, err = e.reviews.Decide(ctx, instructorActor, activity.ID, review.ID, approve(""))
	require.NoError(t, err)
	_, err = e.reviews.Decide(ctx, committeeActor, activity.ID, review.ID, approve(""))
	require.NoError(t, err)

	activity, err = e.activities.Get(ctx, activity.ID)
	require.NoError(t, err)
	require.Equal(t, models.ActivityApproved, activity.State)
	return activity, detail
}

func approve(comment string) dto.ReviewDecisionRequest {
	state := true
	return dto.ReviewDecisionRequest{State: &state, Comment: comment}
}

func reject(comment string) dto.ReviewDecisionRequest {
	state := false
	return dto.ReviewDecisionRequest{State: &state, Comment: comment}
}

func newTestFileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("PUT", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(int64(len(content))+1024))
	files := req.MultipartForm.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
