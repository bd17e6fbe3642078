package rayid

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRayIDAssigned(t *testing.T) {
	app := fiber.New()
	app.Use(New())
	var seen string
	app.Get("/ping", func(c *fiber.Ctx) error {
		seen, _ = c.Locals(LocalsKey).(string)
		return c.SendString("pong")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, resp.Header.Get(HeaderName))
}

func TestRayIDReused(t *testing.T) {
	app := fiber.New()
	app.Use(New())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(HeaderName, "upstream-ray")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "upstream-ray", resp.Header.Get(HeaderName))
}
