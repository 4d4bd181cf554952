package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/workflow"
)

func newStudentAuth(t *testing.T, env *testEnv, profile http.HandlerFunc) StudentAuthService {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("code") != "valid" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":600}`))
	})
	mux.HandleFunc("/me", profile)
	provider := httptest.NewServer(mux)
	t.Cleanup(provider.Close)

	return NewStudentAuthService(StudentSignInConfig{
		OAuth2: oauth2.Config{
			ClientID: "tickets-web",
			Endpoint: oauth2.Endpoint{TokenURL: provider.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
		},
		UserInfoURL: provider.URL + "/me",
		IDField:     "studentNumber",
		HTTPClient:  provider.Client(),
	}, env.repos.Students, env.auth, env.audit, testLogger())
}

func TestStudentSignInReadsNumericStudentNumber(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()
	require.NoError(t, env.db.Create(&models.Student{ID: "20240001", Name: "Lin"}).Error)

	signIn := newStudentAuth(t, env, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"studentNumber":20240001,"name":"Lin"}`))
	})

	result, err := signIn.SignIn(ctx, " valid ")
	require.NoError(t, err)
	require.Equal(t, "20240001", result.User.Student.ID)

	claims, err := env.auth.ParseToken(ctx, result.Token)
	require.NoError(t, err)
	require.Equal(t, "20240001", claims.Subject)
	userType, ok := claims.UserType()
	require.True(t, ok)
	require.Equal(t, models.UserStudent, userType)

	_, err = signIn.SignIn(ctx, "expired")
	require.ErrorIs(t, err, apperror.ErrInvalidCredentials)
}

func TestStudentSignInProviderFailures(t *testing.T) {
	env := newTestEnv(t, workflow.DefaultPolicy())
	ctx := context.Background()

	down := newStudentAuth(t, env, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := down.SignIn(ctx, "valid")
	require.ErrorIs(t, err, apperror.ErrUnavailable)

	anonymous := newStudentAuth(t, env, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Nobody"}`))
	})
	_, err = anonymous.SignIn(ctx, "valid")
	require.ErrorIs(t, err, apperror.ErrForbidden)

	unregistered := newStudentAuth(t, env, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"studentNumber":"s-404"}`))
	})
	_, err = unregistered.SignIn(ctx, "valid")
	require.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = unregistered.SignIn(ctx, "")
	require.ErrorIs(t, err, apperror.ErrValidation)
}
