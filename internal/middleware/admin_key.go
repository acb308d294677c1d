package middleware

import (
	"crypto/subtle"

	"salesquota-backend/internal/pkg/constants"
	"salesquota-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// RequireAdminKey guards cap administration. The key travels in X-Admin-Key; an empty
// configured key disables the guarded routes entirely.
func RequireAdminKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return response.Error(c, "Admin API disabled", fiber.StatusForbidden, nil)
		}
		got := c.Get(constants.HeaderAdminKey)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}
