package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// cacheRule maps a path to a Cache-Control value. exact rules match the whole
// path; the rest match by prefix. First match wins.
type cacheRule struct {
	path  string
	exact bool
	value string
}

// Notes never change once stored. Nearby results go stale as notes are added.
var cacheRules = []cacheRule{
	{path: "/v1/health", exact: true, value: "no-cache"},
	{path: "/v1/ready", exact: true, value: "no-cache"},
	{path: "/metrics", exact: true, value: "no-cache"},
	{path: "/v1/notes/nearby", value: "public, max-age=30"},
	{path: "/v1/notes", exact: true, value: "public, max-age=10"},
	{path: "/v1/notes/", value: "public, max-age=600"},
	{path: "/docs", value: "public, max-age=3600"},
	{path: "/v1/", value: "private, max-age=0"},
}

func cacheControlFor(path string) string {
	for _, r := range cacheRules {
		if (r.exact && path == r.path) || (!r.exact && strings.HasPrefix(path, r.path)) {
			return r.value
		}
	}
	return ""
}

// CachingMiddleware sets Cache-Control on GET responses that did not set one.
// Error responses are never stored.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if c.Method() != fiber.MethodGet || len(c.Response().Header.Peek(fiber.HeaderCacheControl)) > 0 {
			return err
		}
		if c.Response().StatusCode() >= 400 {
			c.Set(fiber.HeaderCacheControl, "no-store")
			return err
		}
		if v := cacheControlFor(c.Path()); v != "" {
			c.Set(fiber.HeaderCacheControl, v)
		}
		return err
	}
}
