package middleware

import (
	"strings"

	"salesquota-backend/internal/pkg/constants"
	"salesquota-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const devPasswordHeader = "dev-password"

// CORSConfig: origins ending with AllowedSuffix are trusted; DevPassword lets other origins through in development.
type CORSConfig struct {
	AllowedSuffix string
	DevPassword   string
}

var (
	corsAllowHeaders = strings.Join([]string{
		fiber.HeaderContentType, devPasswordHeader, constants.HeaderAdminKey, constants.HeaderTraceID,
	}, ", ")
	corsAllowMethods = strings.Join([]string{
		fiber.MethodGet, fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodOptions,
	}, ", ")
)

// CORS rejects cross-origin requests from untrusted origins with 403 and answers preflights itself.
// Requests without an Origin header (same-origin, curl, service-to-service) pass untouched.
func CORS(cfg CORSConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" {
			return c.Next()
		}
		preflight := c.Method() == fiber.MethodOptions
		if !cfg.allows(c, origin, preflight) {
			return response.Error(c, "Not allowed by CORS", fiber.StatusForbidden, nil)
		}
		c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
		c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
		c.Set(fiber.HeaderAccessControlAllowHeaders, corsAllowHeaders)
		c.Set(fiber.HeaderAccessControlAllowMethods, corsAllowMethods)
		c.Set(fiber.HeaderAccessControlExposeHeaders, constants.HeaderTraceID)
		c.Vary(fiber.HeaderOrigin)
		if preflight {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

func (cfg CORSConfig) allows(c *fiber.Ctx, origin string, preflight bool) bool {
	if cfg.AllowedSuffix != "" && strings.HasSuffix(strings.ToLower(origin), strings.ToLower(cfg.AllowedSuffix)) {
		return true
	}
	// browsers do not send custom headers on preflight, so local dev origins are let through there
	if preflight && (strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")) {
		return true
	}
	return cfg.DevPassword != "" && c.Get(devPasswordHeader) == cfg.DevPassword
}
