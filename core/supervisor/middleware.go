package supervisor

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Middleware routes every request through the supervisor. The request runs on
// a handler slot with the worker group's context as its user context, so
// downstream handlers observe worker kills as context cancellation.
//
// A timed-out, aborted or crashed request has no well-formed response to
// send: the client connection is closed right away. The request itself is
// released only after the handler chain has unwound, because fasthttp
// recycles the ctx the moment this middleware returns and the unwinding
// handler may still write its own error response into it.
func Middleware(s *Supervisor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		parent := c.UserContext()
		conn := c.Context().Conn()
		finished := make(chan struct{})

		err := s.Dispatch(parent, func(ctx context.Context) error {
			defer close(finished)
			c.SetUserContext(ctx)
			defer c.SetUserContext(parent)
			return c.Next()
		})

		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrTimeout), errors.Is(err, ErrAborted), errors.Is(err, ErrCrashed):
			if conn != nil {
				_ = conn.Close()
			}
			<-finished
			c.Context().SetConnectionClose()
			return nil
		case errors.Is(err, ErrShuttingDown):
			return fiber.ErrServiceUnavailable
		default:
			return err
		}
	}
}
