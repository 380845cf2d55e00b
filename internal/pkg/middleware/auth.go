package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TourMarket/internal/pkg/entitlements"
	icuser "github.com/ManuelReschke/TourMarket/internal/pkg/usercontext"
)

// RequireAuth ensures an authenticated caller and returns JSON 401 otherwise.
func RequireAuth(c *fiber.Ctx) error {
	v := c.Locals(icuser.KeyFromProtected)
	loggedIn := false
	if b, ok := v.(bool); ok {
		loggedIn = b
	}
	if !loggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireRole checks role through the authorization cache on every request,
// so grants and revocations apply without a new API key.
func RequireRole(roles RoleReader, role entitlements.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := icuser.GetUserID(c)
		if userID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
		}
		ok, err := roles.HasRole(c.UserContext(), userID, role)
		if err != nil {
			log.Errorw("[Auth] role check failed", "user_id", userID, "role", role, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Role check failed"})
		}
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "requires role " + string(role)})
		}
		return c.Next()
	}
}
