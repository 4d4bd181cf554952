package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
)

const (
	userInfoMaxBytes      = 1 << 20
	identityClientTimeout = 10 * time.Second
)

// StudentAuthService signs students in through the school identity provider.
type StudentAuthService interface {
	SignIn(ctx context.Context, code string) (dto.StudentSignInResponse, error)
}

// TokenIssuer mints access tokens for a verified principal.
type TokenIssuer interface {
	IssueToken(subject string, userType models.UserType) (string, time.Time, error)
}

// StudentSignInConfig wires the authorization code exchange. UserInfoURL must
// answer with a JSON object whose IDField holds the student number.
type StudentSignInConfig struct {
	OAuth2      oauth2.Config
	UserInfoURL string
	IDField     string
	HTTPClient  *http.Client
}

type studentAuthService struct {
	oauth       oauth2.Config
	userInfoURL string
	idField     string
	httpClient  *http.Client
	students    repository.StudentRepository
	tokens      TokenIssuer
	audit       AuditRecorder
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// NewStudentAuthService constructs the student sign-in service.
func NewStudentAuthService(cfg StudentSignInConfig, students repository.StudentRepository, tokens TokenIssuer, audit AuditRecorder, logger zerolog.Logger) StudentAuthService {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: identityClientTimeout}
	}
	idField := strings.TrimSpace(cfg.IDField)
	if idField == "" {
		idField = "id"
	}
	return &studentAuthService{
		oauth:       cfg.OAuth2,
		userInfoURL: cfg.UserInfoURL,
		idField:     idField,
		httpClient:  client,
		students:    students,
		tokens:      tokens,
		audit:       audit,
		tracer:      otel.Tracer(tracerName + "/student_auth"),
		logger:      logger.With().Str("component", "student_auth_service").Logger(),
	}
}

func (s *studentAuthService) SignIn(ctx context.Context, code string) (dto.StudentSignInResponse, error) {
	ctx, span := s.tracer.Start(ctx, "auth.student_sign_in")
	defer span.End()

	code = strings.TrimSpace(code)
	if code == "" {
		err := apperror.ErrValidation.Detail("code is required")
		failSpan(span, err)
		return dto.StudentSignInResponse{}, err
	}

	providerCtx := context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.oauth.Exchange(providerCtx, code)
	if err != nil {
		s.logger.Warn().Err(err).Msg("authorization code exchange failed")
		err = exchangeError(err)
		failSpan(span, err)
		return dto.StudentSignInResponse{}, err
	}

	subject, err := s.subject(providerCtx, token)
	if err != nil {
		failSpan(span, err)
		return dto.StudentSignInResponse{}, err
	}
	span.SetAttributes(attribute.String("student.id", subject))

	var student models.Student
	err = withRetry(ctx, func() error {
		var err error
		student, err = s.students.GetByID(ctx, subject)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrForbidden.Detail("account %s is not a registered student", subject)
		}
		return storageError(err, nil)
	})
	if err != nil {
		failSpan(span, err)
		actor := Actor{ID: subject, Role: models.UserStudent.Role()}
		return dto.StudentSignInResponse{}, denied(ctx, s.audit, actor, "student", subject, err)
	}

	accessToken, expiresAt, err := s.tokens.IssueToken(student.ID, models.UserStudent)
	if err != nil {
		failSpan(span, err)
		return dto.StudentSignInResponse{}, err
	}

	s.logger.Info().Str("student_id", student.ID).Msg("student signed in")
	return dto.StudentSignInResponse{
		Token:     accessToken,
		ExpiresAt: expiresAt,
		User:      dto.NewStudentUser(student),
	}, nil
}

// subject reads the student number from the provider's user info endpoint.
func (s *studentAuthService) subject(ctx context.Context, token *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return "", apperror.ErrUnavailable.Wrap(err)
	}
	resp, err := s.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return "", apperror.ErrUnavailable.Wrap(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return "", apperror.ErrUnavailable.Detail("identity provider answered %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", apperror.ErrInvalidCredentials.Detail("identity provider refused the access token")
	}

	decoder := json.NewDecoder(io.LimitReader(resp.Body, userInfoMaxBytes))
	decoder.UseNumber()
	var profile map[string]interface{}
	if err := decoder.Decode(&profile); err != nil {
		return "", apperror.ErrUnavailable.Wrap(err)
	}

	switch value := profile[s.idField].(type) {
	case string:
		if id := strings.TrimSpace(value); id != "" {
			return id, nil
		}
	case json.Number:
		return value.String(), nil
	}
	return "", apperror.ErrForbidden.Detail("identity profile has no %s", s.idField)
}

func exchangeError(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && retrieve.Response != nil && retrieve.Response.StatusCode < http.StatusInternalServerError {
		return apperror.ErrInvalidCredentials.Detail("authorization code was rejected")
	}
	return apperror.ErrUnavailable.Wrap(err)
}
