package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets a default Cache-Control on GET responses that did
// not set one. Live data (devices, replays, geocode) is never cached.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || len(c.Response().Header.Peek(fiber.HeaderCacheControl)) > 0 {
			return err
		}
		if ttl := cacheControlFor(c.Path()); ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}

func cacheControlFor(path string) string {
	switch {
	case path == "/v1/health" || path == "/v1/ready" || path == "/metrics":
		return "no-cache"
	case strings.HasPrefix(path, "/v1/replays"), strings.HasPrefix(path, "/v1/devices"):
		return "no-store"
	case path == "/v1/geocode":
		// Answers are cached server-side.
		return "private, max-age=0"
	case path == "/v1/geozones/containing":
		return "public, max-age=30"
	case strings.HasPrefix(path, "/v1/geozones/"):
		return "public, max-age=60"
	case strings.HasPrefix(path, "/v1/"):
		return "public, max-age=30"
	}
	return ""
}
