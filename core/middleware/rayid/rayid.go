// Package rayid tags every request with a unique ray ID for tracing.
package rayid

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderName is the response header the ray ID is echoed in.
const HeaderName = "X-Ray-Id"

// LocalsKey is the Fiber locals key the ray ID is stored under.
const LocalsKey = "ray_id"

// New returns a middleware that assigns a ray ID to each request. An
// incoming X-Ray-Id header is reused so upstream proxies can correlate.
func New() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(HeaderName)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Locals(LocalsKey, rid)
		c.Set(HeaderName, rid)
		return c.Next()
	}
}
