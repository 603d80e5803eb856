package cors

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	AllowedDomains []string
	Logger         *zap.Logger
}

// New builds the origin gate. Requests with no Origin header pass
// through untouched; browser requests from an unlisted origin get a 403
// with no CORS headers so the browser blocks the response either way.
func New(cfg Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)

		if origin == "" {
			if c.Method() == fiber.MethodOptions {
				return c.SendStatus(fiber.StatusNoContent)
			}
			return c.Next()
		}

		if !OriginAllowed(origin, cfg.AllowedDomains) {
			cfg.Logger.Warn("Rejected cross-origin request",
				zap.String("origin", origin),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Origin not allowed",
			})
		}

		c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization")
		c.Set(fiber.HeaderAccessControlAllowCredentials, "true")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}

// OriginAllowed matches the origin's hostname against the configured
// domain patterns. Patterns may carry a single * wildcard. Local
// development hosts are always allowed.
func OriginAllowed(origin string, patterns []string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	if host == "localhost" || host == "127.0.0.1" {
		return true
	}

	for _, pattern := range patterns {
		if matchDomain(host, strings.ToLower(pattern)) {
			return true
		}
	}

	return false
}

func matchDomain(host, pattern string) bool {
	star := strings.Index(pattern, "*")
	if star < 0 {
		return host == pattern
	}

	prefix := pattern[:star]
	suffix := pattern[star+1:]

	// The wildcard must consume at least zero characters but the fixed
	// parts must not overlap.
	if len(host) < len(prefix)+len(suffix) {
		return false
	}

	return strings.HasPrefix(host, prefix) && strings.HasSuffix(host, suffix)
}
