package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mediation-escrow/backend/internal/config"
	"github.com/mediation-escrow/backend/internal/http/handlers"
	"github.com/mediation-escrow/backend/internal/metrics"
	"github.com/mediation-escrow/backend/internal/middleware"
	"github.com/mediation-escrow/backend/internal/rbac"
	"github.com/mediation-escrow/backend/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps is everything the router wires into handlers. Redis is optional; without it
// the rate limiter is skipped.
type Deps struct {
	Config    *config.Config
	Log       *zap.Logger
	Redis     *redis.Client
	Mediation *services.MediationService
	Users     *services.UserService
	Hub       *handlers.WSHub
}

// NewApp builds the fiber app with the shared error envelope.
func NewApp(log *zap.Logger) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      "mediation-escrow-api",
		ErrorHandler: handlers.ErrorHandler(log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
}

// NewMetricsApp serves only /metrics, for processes without the API.
func NewMetricsApp(log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "mediation-escrow-worker",
		ErrorHandler:          handlers.ErrorHandler(log),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	return app
}

func SetupRouter(app *fiber.App, d Deps) {
	cfg, log := d.Config, d.Log

	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + middleware.RequestIDHeader,
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	mediations := handlers.NewMediationHandler(d.Mediation, log)
	admin := handlers.NewAdminHandler(d.Mediation, log)
	users := handlers.NewUserHandler(d.Users, log)
	meta := handlers.NewMetaHandler(d.Mediation, log)
	authH := handlers.NewAuthHandler(d.Users, cfg, log)

	api := app.Group("/api/v1")
	if d.Redis != nil {
		api.Use(middleware.RateLimitMiddleware(d.Redis, 100, time.Minute))
	}

	// Meta (public, no auth required)
	api.Get("/meta/fees", meta.GetFees)
	api.Post("/meta/fees/quote", meta.QuoteFee)

	if cfg.IsDevelopment() {
		api.Post("/dev/token", authH.DevToken)
		api.Post("/dev/users", authH.DevCreateUser)
	}

	protected := api.Group("", middleware.AuthMiddleware(cfg, log))
	protected.Get("/me", users.GetMe)

	m := protected.Group("/mediations")
	m.Post("/", middleware.RequirePermission(rbac.PermCreateMediation), mediations.CreateMediation)
	m.Get("/", middleware.RequirePermission(rbac.PermReadMediation), mediations.ListMediations)
	m.Get("/:id", middleware.RequirePermission(rbac.PermReadMediation), mediations.GetMediation)
	m.Get("/:id/history", middleware.RequirePermission(rbac.PermReadMediation), mediations.GetHistory)
	m.Get("/:id/suggestions", middleware.RequirePermission(rbac.PermActAsParty), mediations.Suggestions)
	m.Post("/:id/select", middleware.RequirePermission(rbac.PermActAsParty), mediations.SelectMediator)
	m.Post("/:id/accept", middleware.RequirePermission(rbac.PermActAsMediator), mediations.AcceptAssignment)
	m.Post("/:id/reject", middleware.RequirePermission(rbac.PermActAsMediator), mediations.RejectAssignment)
	m.Post("/:id/seller-ready", middleware.RequirePermission(rbac.PermActAsParty), mediations.SellerReady)
	m.Post("/:id/buyer-ready", middleware.RequirePermission(rbac.PermActAsParty), mediations.BuyerReady)
	m.Post("/:id/dispute", middleware.RequirePermission(rbac.PermActAsParty), mediations.OpenDispute)
	m.Post("/:id/confirm-receipt", middleware.RequirePermission(rbac.PermActAsParty), mediations.ConfirmReceipt)
	m.Post("/:id/buyer-cancel", middleware.RequirePermission(rbac.PermActAsParty), mediations.BuyerCancel)
	m.Post("/:id/seller-cancel", middleware.RequirePermission(rbac.PermActAsParty), mediations.SellerCancel)

	a := protected.Group("/admin/mediations", middleware.AdminMiddleware())
	a.Post("/:id/assign", middleware.RequirePermission(rbac.PermAssignMediator), admin.AssignMediator)
	a.Post("/:id/join", middleware.RequirePermission(rbac.PermOverseeDispute), admin.JoinDispute)
	a.Post("/:id/resolve", middleware.RequirePermission(rbac.PermResolveDispute), admin.ResolveDispute)
	a.Post("/:id/cancel", middleware.RequirePermission(rbac.PermCancelAnyRequest), admin.Cancel)
	a.Post("/:id/start-chat", middleware.RequirePermission(rbac.PermRunSweeps), admin.StartChat)
	a.Post("/:id/expire-assignment", middleware.RequirePermission(rbac.PermRunSweeps), admin.ExpireAssignment)
	a.Post("/:id/expire-selection", middleware.RequirePermission(rbac.PermRunSweeps), admin.ExpireSelection)

	// WebSocket
	if d.Hub != nil {
		app.Use("/ws", middleware.AuthMiddleware(cfg, log), handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(d.Hub.HandleWS))
	}
}
