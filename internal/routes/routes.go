package routes

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/taskboard/internal/config"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Handlers bundles everything Setup mounts.
type Handlers struct {
	Auth   *handlers.AuthHandler
	Health *handlers.HealthHandler
	Task   *handlers.TaskHandler
	Image  *handlers.ImageHandler
	Tokens middleware.TokenChecker
}

// NewApp builds the Fiber app with the global middleware every route shares.
func NewApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    bodyLimit(cfg),
		ErrorHandler: ErrorHandler,
		ProxyHeader:  cfg.ProxyHeader,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecurityHeaders())
	return app
}

// bodyLimit leaves room above the image limit so oversized uploads reach
// validation and get a field error rather than a bare 413.
func bodyLimit(cfg *config.Config) int {
	limit := cfg.ImageMaxKB * 1024 * 2
	if limit < 8*1024*1024 {
		limit = 8 * 1024 * 1024
	}
	return limit
}

func Setup(app *fiber.App, cfg *config.Config, h Handlers) {
	if cfg.StorageDriver == "local" {
		app.Static("/storage", cfg.StoragePath)
	}

	api := app.Group("/api")

	api.Get("/health", h.Health.Check)

	// Stricter per-IP limit on credential endpoints
	authLimit := limiter.New(limiter.Config{
		Max:               cfg.AuthRateLimit,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	})
	api.Post("/register", authLimit, h.Auth.Register)
	api.Post("/login", authLimit, h.Auth.Login)

	// Protected routes - apply middleware to individual routes so it never
	// leaks onto the public ones above.
	protected := middleware.JWTProtected(cfg, h.Tokens)
	api.Post("/logout", protected, h.Auth.Logout)
	api.Get("/me", protected, h.Auth.Me)

	api.Get("/task/all", protected, h.Task.All)
	api.Get("/task/mine", protected, h.Task.Mine)
	api.Post("/task/create", protected, h.Task.Create)
	api.Get("/task/:id", protected, h.Task.Show)
	api.Patch("/task/:id", protected, h.Task.Update)
	api.Post("/task/:id", protected, h.Task.UpdateViaPost)
	api.Delete("/task/:id", protected, h.Task.Delete)

	api.Post("/upload-image", protected, h.Image.Upload)
	api.Delete("/delete-image/:id", protected, h.Image.Delete)
}

// ErrorHandler renders errors that escape the handlers in the standard
// error envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
