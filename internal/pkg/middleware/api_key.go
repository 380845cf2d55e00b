package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/TourMarket/app/models"
	"github.com/ManuelReschke/TourMarket/app/repository"
	"github.com/ManuelReschke/TourMarket/internal/pkg/entitlements"
	"github.com/ManuelReschke/TourMarket/internal/pkg/usercontext"
)

// RoleReader is the role query surface the middlewares need.
type RoleReader interface {
	Roles(ctx context.Context, userID uint) (entitlements.RoleSet, error)
	HasRole(ctx context.Context, userID uint, role entitlements.Role) (bool, error)
}

// APIKeyAuthMiddleware authenticates requests carrying a user API key header.
func APIKeyAuthMiddleware(users repository.UserRepository, roles RoleReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		ctx := c.UserContext()
		user, err := users.GetByAPIKeyHash(ctx, models.HashAPIKey(apiKey))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Errorw("[Auth] api key lookup failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}

		if !user.IsActive() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "User inactive"})
		}

		set, err := roles.Roles(ctx, user.ID)
		if err != nil {
			log.Errorw("[Auth] role lookup failed", "user_id", user.ID, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Role lookup failed"})
		}

		// Refresh last-used timestamp best-effort.
		if err := users.TouchAPIKeyUsage(ctx, user.ID); err != nil {
			log.Warnw("[Auth] failed to update api key usage timestamp", "user_id", user.ID, "error", err)
		}

		effective := set.Effective()
		names := make([]string, 0, len(effective))
		for _, r := range effective {
			names = append(names, string(r))
		}
		usercontext.SetUserContext(c, usercontext.UserContext{
			UserID:     user.ID,
			Username:   user.Name,
			IsLoggedIn: true,
			IsAdmin:    set.Has(entitlements.RoleAdmin),
			Roles:      names,
		})

		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
