package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// CounterSnapshot reads a set of named counters.
type CounterSnapshot interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
}

// StatsController exposes operational counters to admins.
type StatsController struct {
	webhooks CounterSnapshot
}

func NewStatsController(webhooks CounterSnapshot) *StatsController {
	return &StatsController{webhooks: webhooks}
}

// HandleWebhookOutcomes returns processed webhook deliveries per outcome.
func (sc *StatsController) HandleWebhookOutcomes(c *fiber.Ctx) error {
	counts, err := sc.webhooks.Snapshot(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"outcomes": counts})
}
