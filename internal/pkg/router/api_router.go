package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/TourMarket/app/controllers"
	"github.com/ManuelReschke/TourMarket/app/repository"
	"github.com/ManuelReschke/TourMarket/internal/pkg/booking"
	"github.com/ManuelReschke/TourMarket/internal/pkg/entitlements"
	"github.com/ManuelReschke/TourMarket/internal/pkg/middleware"
)

// Deps carries what the routes need. LimiterStorage may be nil, then the
// limiter keeps its counters in memory.
type Deps struct {
	Users          repository.UserRepository
	Roles          middleware.RoleReader
	Bookings       *controllers.BookingController
	Billing        *controllers.BillingController
	PlanAdmin      *controllers.PlanAdminController
	UserAdmin      *controllers.UserController
	Stats          *controllers.StatsController
	LimiterStorage fiber.Storage
	LimiterMax     int
	Ping           func() error
}

type ApiRouter struct {
	deps Deps
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	maxRequests := h.deps.LimiterMax
	if maxRequests <= 0 {
		maxRequests = 120
	}
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        maxRequests,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		// Processor retries must never be throttled.
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/api/v1/webhooks/payments"
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Processor webhooks authenticate by signature, not API key.
	v1.Post("/webhooks/payments", h.deps.Billing.HandlePaymentWebhook)
	v1.Get("/plans", h.deps.Billing.HandleListPlans)

	auth := middleware.APIKeyAuthMiddleware(h.deps.Users, h.deps.Roles)

	bookings := v1.Group("/bookings", auth, middleware.RequireAuth)
	bookings.Post("/", h.deps.Bookings.HandleCreate)
	bookings.Get("/", h.deps.Bookings.HandleList)
	bookings.Get("/:id", h.deps.Bookings.HandleGet)
	bookings.Post("/:id/accept", h.deps.Bookings.HandleAction(booking.ActionAccept))
	bookings.Post("/:id/decline", h.deps.Bookings.HandleAction(booking.ActionDecline))
	bookings.Post("/:id/request-payment", h.deps.Bookings.HandleAction(booking.ActionRequestPayment))
	bookings.Post("/:id/complete", h.deps.Bookings.HandleAction(booking.ActionComplete))
	bookings.Post("/:id/cancel", h.deps.Bookings.HandleCancel)
	bookings.Get("/:id/cancellation-quote", h.deps.Bookings.HandleQuote)

	v1.Post("/subscriptions/checkout", auth, middleware.RequireAuth, h.deps.Billing.HandleCheckout)

	me := v1.Group("/me", auth, middleware.RequireAuth)
	me.Get("/roles", h.deps.UserAdmin.HandleMyRoles)
	me.Get("/subscriptions", h.deps.Billing.HandleMySubscriptions)
	me.Get("/notifications", h.deps.UserAdmin.HandleMyNotifications)

	admin := v1.Group("/admin", auth, middleware.RequireAuth, middleware.RequireRole(h.deps.Roles, entitlements.RoleAdmin))
	admin.Post("/plans", h.deps.PlanAdmin.HandleCreate)
	admin.Put("/plans/:id", h.deps.PlanAdmin.HandleUpdate)
	admin.Post("/plans/:id/resync", h.deps.PlanAdmin.HandleResync)
	admin.Post("/users/:id/roles", h.deps.UserAdmin.HandleGrantRole)
	admin.Delete("/users/:id/roles/:role", h.deps.UserAdmin.HandleRevokeRole)
	if h.deps.Stats != nil {
		admin.Get("/stats/webhooks", h.deps.Stats.HandleWebhookOutcomes)
	}
}
