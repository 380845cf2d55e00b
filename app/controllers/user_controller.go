package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/internal/pkg/entitlements"
	"github.com/ManuelReschke/TourMarket/internal/pkg/usercontext"
)

// RoleManager is the coordinator surface used by the user endpoints.
type RoleManager interface {
	Roles(ctx context.Context, userID uint) (entitlements.RoleSet, error)
	GrantManual(ctx context.Context, userID uint, role entitlements.Role) error
	RevokeManual(ctx context.Context, userID uint, role entitlements.Role) error
}

// NotificationLister reads a user's in-app notifications.
type NotificationLister interface {
	ListByUser(ctx context.Context, userID uint, limit int) ([]models.Notification, error)
}

type UserController struct {
	roles         RoleManager
	notifications NotificationLister
}

func NewUserController(roles RoleManager, notifications NotificationLister) *UserController {
	return &UserController{roles: roles, notifications: notifications}
}

// HandleMyRoles lists the caller's effective roles and their sources.
func (uc *UserController) HandleMyRoles(c *fiber.Ctx) error {
	set, err := uc.roles.Roles(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"roles": set.Effective(), "grants": set.Grants})
}

func (uc *UserController) HandleMyNotifications(c *fiber.Ctx) error {
	list, err := uc.notifications.ListByUser(c.UserContext(), usercontext.GetUserID(c), c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"notifications": list})
}

type roleRequest struct {
	Role string `json:"role"`
}

// HandleGrantRole adds a manual grant. Admin only.
func (uc *UserController) HandleGrantRole(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid user id")
	}
	var req roleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid role payload")
	}
	role, ok := entitlements.ParseRole(req.Role)
	if !ok {
		return badRequest(c, "Unknown role")
	}
	if err := uc.roles.GrantManual(c.UserContext(), id, role); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleRevokeRole removes a manual grant. Subscription grants stay.
func (uc *UserController) HandleRevokeRole(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid user id")
	}
	role, ok := entitlements.ParseRole(c.Params("role"))
	if !ok {
		return badRequest(c, "Unknown role")
	}
	if err := uc.roles.RevokeManual(c.UserContext(), id, role); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
