package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/noah-isme/activity-ticket-api/internal/apperror"
	"github.com/noah-isme/activity-ticket-api/internal/dto"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
)

const denylistKeyPrefix = "tickets:denylist:"

// Claims are the access token claims shared with the web client. Student
// tokens minted elsewhere may carry only the role.
type Claims struct {
	Role string           `json:"role"`
	Type *models.UserType `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// UserType resolves the account type carried by the token.
func (c *Claims) UserType() (models.UserType, bool) {
	if c.Type != nil && c.Type.Valid() {
		return *c.Type, true
	}
	return models.ParseUserType(c.Role)
}

// Actor converts verified claims into the acting principal.
func (c *Claims) Actor() Actor {
	userType, _ := c.UserType()
	return Actor{ID: c.Subject, Role: userType.Role()}
}

// TokenDenylist remembers revoked token ids until they expire.
type TokenDenylist interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

type redisDenylist struct {
	client *redis.Client
}

// NewTokenDenylist returns a Redis backed denylist. A nil client disables
// revocation checks.
func NewTokenDenylist(client *redis.Client) TokenDenylist {
	return &redisDenylist{client: client}
}

func (d *redisDenylist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if d.client == nil || tokenID == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, denylistKeyPrefix+tokenID, "1", ttl).Err()
}

func (d *redisDenylist) Revoked(ctx context.Context, tokenID string) (bool, error) {
	if d.client == nil || tokenID == "" {
		return false, nil
	}
	n, err := d.client.Exists(ctx, denylistKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AuthService signs administrators in and verifies access tokens.
type AuthService interface {
	SignIn(ctx context.Context, payload dto.SignInRequest) (dto.SignInResponse, error)
	SignOut(ctx context.Context, claims *Claims) error
	ParseToken(ctx context.Context, raw string) (*Claims, error)
	IssueToken(subject string, userType models.UserType) (string, time.Time, error)
}

type authService struct {
	admins    repository.AdminRepository
	denylist  TokenDenylist
	secret    []byte
	ttl       time.Duration
	validator *validator.Validate
	now       func() time.Time
	logger    zerolog.Logger
}

// NewAuthService constructs the auth service.
func NewAuthService(admins repository.AdminRepository, denylist TokenDenylist, secret string, ttl time.Duration, validate *validator.Validate, logger zerolog.Logger) AuthService {
	if denylist == nil {
		denylist = NewTokenDenylist(nil)
	}
	return &authService{
		admins:    admins,
		denylist:  denylist,
		secret:    []byte(secret),
		ttl:       ttl,
		validator: validate,
		now:       time.Now,
		logger:    logger.With().Str("component", "auth_service").Logger(),
	}
}

func (s *authService) SignIn(ctx context.Context, payload dto.SignInRequest) (dto.SignInResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SignInResponse{}, validationError(err)
	}

	var admin models.Admin
	err := withRetry(ctx, func() error {
		var err error
		admin, err = s.admins.GetByName(ctx, strings.TrimSpace(payload.Name))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrInvalidCredentials
		}
		return storageError(err, nil)
	})
	if err != nil {
		return dto.SignInResponse{}, err
	}

	legacy, ok := checkPassword(admin.PasswordHash, payload.Password)
	if !ok {
		s.logger.Info().Str("admin_id", admin.ID).Msg("rejected sign-in")
		return dto.SignInResponse{}, apperror.ErrInvalidCredentials
	}
	if legacy {
		s.upgradePassword(ctx, &admin, payload.Password)
	}

	token, expiresAt, err := s.IssueToken(admin.ID, admin.Type)
	if err != nil {
		return dto.SignInResponse{}, err
	}

	return dto.SignInResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      dto.NewAdminResponse(admin),
	}, nil
}

// upgradePassword replaces a legacy digest with bcrypt. Failures only cost
// another upgrade attempt on the next sign-in.
func (s *authService) upgradePassword(ctx context.Context, admin *models.Admin, password string) {
	hash, err := HashPassword(password)
	if err != nil {
		s.logger.Warn().Err(err).Str("admin_id", admin.ID).Msg("failed to hash password during upgrade")
		return
	}
	admin.PasswordHash = hash
	if err := s.admins.Update(ctx, admin); err != nil {
		s.logger.Warn().Err(err).Str("admin_id", admin.ID).Msg("failed to persist upgraded password")
		return
	}
	s.logger.Info().Str("admin_id", admin.ID).Msg("legacy password upgraded to bcrypt")
}

func (s *authService) IssueToken(subject string, userType models.UserType) (string, time.Time, error) {
	if subject == "" || !userType.Valid() {
		return "", time.Time{}, fmt.Errorf("token subject and type are required")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Role: userType.Role(),
		Type: &userType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *authService) ParseToken(ctx context.Context, raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperror.ErrUnauthenticated
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, apperror.ErrUnauthenticated.Detail("invalid token")
	}
	if claims.Subject == "" {
		return nil, apperror.ErrUnauthenticated.Detail("token has no subject")
	}
	if _, ok := claims.UserType(); !ok {
		return nil, apperror.ErrUnauthenticated.Detail("token has no known role")
	}

	revoked, err := s.denylist.Revoked(ctx, claims.ID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to check token denylist")
		return nil, apperror.ErrUnavailable.Wrap(err)
	}
	if revoked {
		return nil, apperror.ErrUnauthenticated.Detail("token has been revoked")
	}
	return claims, nil
}

func (s *authService) SignOut(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	if err := s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.logger.Error().Err(err).Str("subject", claims.Subject).Msg("failed to revoke token")
		return apperror.ErrUnavailable.Wrap(err)
	}
	return nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// checkPassword verifies password against hash. Accounts migrated from the
// previous system still hold a hex SHA-256 digest; legacy reports that case.
func checkPassword(hash, password string) (legacy bool, ok bool) {
	if strings.HasPrefix(hash, "$2") {
		return false, bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	if len(hash) != sha256.Size*2 {
		return false, false
	}
	want, err := hex.DecodeString(strings.ToLower(hash))
	if err != nil {
		return false, false
	}
	got := sha256.Sum256([]byte(password))
	return true, subtle.ConstantTimeCompare(want, got[:]) == 1
}
