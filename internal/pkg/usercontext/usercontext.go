package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the authenticated caller of a request
type UserContext struct {
	UserID     uint     `json:"user_id"`
	Username   string   `json:"username"`
	IsLoggedIn bool     `json:"is_logged_in"`
	IsAdmin    bool     `json:"is_admin"`
	Roles      []string `json:"roles"`
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{IsLoggedIn: false, IsAdmin: false}
}

// SetUserContext stores ctx and the individual keys older handlers read.
func SetUserContext(c *fiber.Ctx, ctx UserContext) {
	c.Locals(KeyUserContext, ctx)
	c.Locals(KeyFromProtected, ctx.IsLoggedIn)
	c.Locals(KeyUserID, ctx.UserID)
	c.Locals(KeyUsername, ctx.Username)
	c.Locals(KeyIsAdmin, ctx.IsAdmin)
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}
