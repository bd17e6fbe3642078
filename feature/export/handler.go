package export

import (
	"cohort-copilot/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for saved exports.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// RegisterRoutes registers the export routes. Object names contain
// slashes, so the item routes use a wildcard segment.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/exports")
	group.Get("/", h.HandleList)
	group.Get("/+", h.HandleGet)
	group.Delete("/+", h.HandleDelete)
}

// HandleList lists saved exports.
// @Summary List exports
// @Description Lists saved query exports, newest first.
// @Tags export
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string
// @Router /exports [get]
func (h *Handler) HandleList(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	objects, err := h.service.List(c.Context())
	if err != nil {
		l.Error("Failed to list exports", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list exports"})
	}
	return c.JSON(fiber.Map{
		"exports": objects,
		"count":   len(objects),
	})
}

// HandleGet downloads one export.
// @Summary Download an export
// @Description Returns the JSON body of one saved export.
// @Tags export
// @Produce json
// @Param name path string true "Object name"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /exports/{name} [get]
func (h *Handler) HandleGet(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	name := c.Params("+")

	body, err := h.service.Get(c.Context(), name)
	if err != nil {
		l.Warn("Failed to fetch export", zap.String("name", name), zap.Error(err))
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "export not found"})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// HandleDelete removes one export.
// @Summary Delete an export
// @Description Deletes one saved export.
// @Tags export
// @Produce json
// @Param name path string true "Object name"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /exports/{name} [delete]
func (h *Handler) HandleDelete(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	name := c.Params("+")

	if err := h.service.Delete(c.Context(), name); err != nil {
		l.Warn("Failed to delete export", zap.String("name", name), zap.Error(err))
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "export not found"})
	}
	return c.JSON(fiber.Map{"message": "export deleted", "name": name})
}
