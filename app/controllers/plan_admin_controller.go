package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TourMarket/internal/pkg/billing"
)

// PlanAdminController edits the plan catalog. Mirrored plans change in the
// processor first.
type PlanAdminController struct {
	sync *billing.PlanSyncService
}

func NewPlanAdminController(sync *billing.PlanSyncService) *PlanAdminController {
	return &PlanAdminController{sync: sync}
}

func (pc *PlanAdminController) HandleCreate(c *fiber.Ctx) error {
	var in billing.PlanInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid plan payload")
	}
	plan, err := pc.sync.Create(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}

func (pc *PlanAdminController) HandleUpdate(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid plan id")
	}
	var in billing.PlanInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid plan payload")
	}
	plan, err := pc.sync.Update(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(plan)
}

// HandleResync pushes the stored plan to the processor again.
func (pc *PlanAdminController) HandleResync(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid plan id")
	}
	plan, err := pc.sync.Resync(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(plan)
}
