package dataset

import (
	"cohort-copilot/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for dataset state and connection settings.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// RegisterRoutes registers the dataset routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/dataset")
	group.Get("/status", h.HandleStatus)
	group.Get("/fields", h.HandleFields)
	group.Post("/reload", h.HandleReload)

	app.Post("/settings", h.HandleSettings)
}

// HandleStatus reports whether the dataset cache is ready.
// @Summary Dataset status
// @Description Reports the dataset cache state, including load progress and errors.
// @Tags dataset
// @Produce json
// @Success 200 {object} dataset.State
// @Router /dataset/status [get]
func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	h.service.EnsureBackgroundLoad()
	state := h.service.Snapshot()
	return c.JSON(fiber.Map{
		"ready":     state.Ready,
		"status":    state.Status,
		"error":     state.Error,
		"load_info": state.Info,
		"source":    h.service.SourceLabel(),
	})
}

// HandleFields lists the field names of the loaded dataset.
// @Summary Dataset fields
// @Description Lists the flat field names available for filter specs.
// @Tags dataset
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]string "Dataset not loaded yet"
// @Router /dataset/fields [get]
func (h *Handler) HandleFields(c *fiber.Ctx) error {
	h.service.EnsureBackgroundLoad()
	state := h.service.Snapshot()
	if !state.Ready {
		msg := state.Error
		if msg == "" {
			msg = state.Status
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": msg})
	}
	return c.JSON(fiber.Map{
		"fields": state.Fields,
		"count":  len(state.Fields),
	})
}

// HandleReload drops the cache and reloads it in the background.
// @Summary Reload dataset
// @Description Drops the cached dataset and starts a fresh background load.
// @Tags dataset
// @Produce json
// @Success 202 {object} map[string]string
// @Router /dataset/reload [post]
func (h *Handler) HandleReload(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	l.Info("Dataset reload requested")
	h.service.Reload()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Reloading dataset in background.",
	})
}

type settingsRequest struct {
	PreviewURL   string `json:"preview_url"`
	CookieHeader string `json:"cookie_header"`
	Referer      string `json:"referer"`
}

// HandleSettings reconfigures the upstream connection at runtime.
// @Summary Update API connection
// @Description Points the service at a new preview URL and session cookie, then reloads the dataset.
// @Tags dataset
// @Accept json
// @Produce json
// @Param request body dataset.settingsRequest true "Connection settings"
// @Success 202 {object} map[string]string
// @Failure 400 {object} map[string]string "Invalid preview URL"
// @Router /settings [post]
func (h *Handler) HandleSettings(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var req settingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.service.ApplySettings(req.PreviewURL, req.CookieHeader, req.Referer); err != nil {
		l.Warn("Rejected connection settings", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("API connection updated", zap.String("source", h.service.SourceLabel()))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "API connection updated. Loading data in background.",
		"source":  h.service.SourceLabel(),
	})
}
