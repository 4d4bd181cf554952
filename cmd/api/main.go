package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/noah-isme/activity-ticket-api/internal/config"
	"github.com/noah-isme/activity-ticket-api/internal/database"
	"github.com/noah-isme/activity-ticket-api/internal/events"
	"github.com/noah-isme/activity-ticket-api/internal/handler"
	"github.com/noah-isme/activity-ticket-api/internal/middleware"
	"github.com/noah-isme/activity-ticket-api/internal/repository"
	"github.com/noah-isme/activity-ticket-api/internal/router"
	"github.com/noah-isme/activity-ticket-api/internal/service"
	"github.com/noah-isme/activity-ticket-api/internal/utils"
	"github.com/noah-isme/activity-ticket-api/internal/workflow"
)

const minBodyLimit = 4 * 1024 * 1024

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "activity-ticket-api").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis disabled; token revocation and queue count caching are off")
	}

	var publisher events.Publisher = events.Nop{}
	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = events.Connect(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
		publisher = events.NewNATSPublisher(natsConn, cfg.EventSubjectPrefix, middleware.CorrelationIDFromContext, logger)
	}

	policy := workflow.Policy{
		TicketReviewRequired: cfg.TicketReviewRequired,
		AllowResubmission:    cfg.AllowResubmission,
	}
	validate := service.NewValidator()
	repos := repository.NewRepositories(db)
	uow := repository.NewUnitOfWork(db)

	auditService := service.NewAuditService(repos.AuditLogs, logger)
	authService := service.NewAuthService(repos.Admins, service.NewTokenDenylist(redisClient), cfg.JWTSecret, cfg.JWTTTL, validate, logger)
	detailService := service.NewDetailService(uow, repos.Activities, repos.Details, auditService, validate, logger)
	reviewCache := service.NewReviewCountCache(redisClient, cfg.ReviewCountCacheTTL, logger)
	activityService := service.NewActivityService(uow, repos.Activities, repos.Admins, reviewCache, auditService, validate, logger)
	reviewService := service.NewReviewService(uow, repos.Activities, repos.Reviews, policy, reviewCache, publisher, auditService, validate, logger)
	ticketService := service.NewTicketService(uow, repos.Activities, repos.Details, repos.Tickets, policy, publisher, auditService, validate, cfg.ImportMaxBytes(), logger)
	adminService := service.NewAdminService(uow, repos.Admins, repos.Students, auditService, validate, logger)
	studentService := service.NewStudentService(uow, auditService, validate, logger)

	bodyLimit := int(cfg.ImportMaxBytes()) + 1024*1024
	if bodyLimit < minBodyLimit {
		bodyLimit = minBodyLimit
	}
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    bodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return utils.SendAppError(c, err)
		},
	})

	middleware.Register(app, middleware.Config{
		Logger:         &logger,
		AllowOrigins:   cfg.CORSAllowOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})
	router.Register(app, cfg, router.Dependencies{
		ActivityHandler: handler.NewActivityHandler(activityService, logger),
		DetailHandler:   handler.NewDetailHandler(detailService, logger),
		TicketHandler:   handler.NewTicketHandler(ticketService, logger),
		ReviewHandler:   handler.NewReviewHandler(reviewService, logger),
		AuthHandler:     handler.NewAuthHandler(authService, logger),
		UserHandler:     handler.NewUserHandler(adminService, studentService, logger),
		AuditHandler:    handler.NewAuditHandler(auditService, logger),
		HealthProbes:    healthProbes(db, redisClient, natsConn),
		JWTMiddleware:   middleware.JWTProtected(authService),
		Audit:           auditService,
		Redis:           redisClient,

		StudentAuthHandler: studentSignInHandler(cfg.StudentOAuth, repos.Students, authService, auditService, logger),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

// studentSignInHandler returns nil when no identity provider is configured,
// which leaves the student sign-in route unregistered.
func studentSignInHandler(cfg config.StudentOAuthConfig, students repository.StudentRepository, tokens service.TokenIssuer, audit service.AuditRecorder, logger zerolog.Logger) *handler.StudentAuthHandler {
	if !cfg.Enabled() {
		logger.Info().Msg("student oauth2 sign-in disabled")
		return nil
	}
	signIn := service.NewStudentAuthService(service.StudentSignInConfig{
		OAuth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL},
		},
		UserInfoURL: cfg.UserInfoURL,
		IDField:     cfg.IDField,
	}, students, tokens, audit, logger)
	return handler.NewStudentAuthHandler(signIn, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
