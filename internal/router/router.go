package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/activity-ticket-api/internal/config"
	"github.com/noah-isme/activity-ticket-api/internal/handler"
	"github.com/noah-isme/activity-ticket-api/internal/middleware"
	"github.com/noah-isme/activity-ticket-api/internal/models"
	"github.com/noah-isme/activity-ticket-api/internal/observability"
	"github.com/noah-isme/activity-ticket-api/internal/service"
)

const (
	signInRateLimit  = 10
	signInRateWindow = time.Minute
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ActivityHandler    *handler.ActivityHandler
	DetailHandler      *handler.DetailHandler
	TicketHandler      *handler.TicketHandler
	ReviewHandler      *handler.ReviewHandler
	AuthHandler        *handler.AuthHandler
	StudentAuthHandler *handler.StudentAuthHandler
	UserHandler        *handler.UserHandler
	AuditHandler       *handler.AuditHandler
	HealthProbes       map[string]handler.Probe
	JWTMiddleware      fiber.Handler
	Audit              service.AuditRecorder
	Redis              *redis.Client
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	app.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	adminOnly := middleware.RoleGuard{Roles: adminRoles(), Audit: deps.Audit, EntityType: "admin"}.Handler()
	suOnly := middleware.RoleGuard{Roles: []string{middleware.AuthRoleSU}, Audit: deps.Audit, EntityType: "audit"}.Handler()

	// Sign-in is public; it is registered before any /user group adds the
	// JWT middleware. Both sign-in routes draw from one window per client.
	signInLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Identifier: "sign-in",
		Max:        signInRateLimit,
		Window:     signInRateWindow,
		Redis:      deps.Redis,
	})
	if deps.StudentAuthHandler != nil {
		app.Get("/user/oauth2/sign-in", signInLimiter, deps.StudentAuthHandler.SignIn)
	}
	if deps.AuthHandler != nil {
		app.Post("/user/admin/sign-in", signInLimiter, deps.AuthHandler.SignIn)
		app.Post("/user/sign-out", jwtMiddleware,
			middleware.WithAuth(deps.AuthHandler.SignOut, middleware.AuthOptions{RequireUser: true}))
	}

	if deps.UserHandler != nil {
		user := app.Group("/user", jwtMiddleware)
		user.Get("/me", middleware.WithAuth(deps.UserHandler.Me, middleware.AuthOptions{RequireUser: true}))
		user.Put("/student/import", middleware.WithAuth(deps.UserHandler.ImportStudents,
			middleware.AuthOptions{Role: middleware.AuthRoleSU}))
		if deps.TicketHandler != nil {
			deps.TicketHandler.RegisterStudent(user.Group("/student"))
		}
		deps.UserHandler.RegisterAdmin(user.Group("/admin", adminOnly))
	}

	activity := app.Group("/activity", jwtMiddleware)
	if deps.ReviewHandler != nil {
		deps.ReviewHandler.RegisterQueue(activity)
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(activity)
	}
	if deps.DetailHandler != nil {
		deps.DetailHandler.Register(activity)
	}
	if deps.TicketHandler != nil {
		deps.TicketHandler.Register(activity)
	}
	if deps.ReviewHandler != nil {
		deps.ReviewHandler.Register(activity)
	}

	if deps.AuditHandler != nil {
		deps.AuditHandler.Register(app.Group("/audit", jwtMiddleware, suOnly))
	}
}

func adminRoles() []string {
	roles := make([]string, 0, int(models.UserStudent))
	for t := models.UserSU; t.IsAdmin(); t++ {
		roles = append(roles, t.Role())
	}
	return roles
}
