package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type HealthRouter struct {
	ping func() error
}

func NewHealthRouter(deps Deps) *HealthRouter {
	return &HealthRouter{ping: deps.Ping}
}

func (h HealthRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if h.ping != nil {
			if err := h.ping(); err != nil {
				log.Warnw("[Health] database ping failed", "error", err)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
