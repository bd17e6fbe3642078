package history

import (
	"cohort-copilot/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the query history.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// RegisterRoutes registers the history routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/history", h.HandleRecent)
}

// HandleRecent lists the most recent executed queries.
// @Summary Query history
// @Description Lists recently executed queries, newest first.
// @Tags history
// @Produce json
// @Param limit query int false "Max entries (default 50, cap 500)"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string
// @Router /history [get]
func (h *Handler) HandleRecent(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	limit := c.QueryInt("limit", defaultRecentLimit)
	entries, err := h.service.Recent(c.Context(), limit)
	if err != nil {
		l.Error("Failed to list query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list query history"})
	}
	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}
