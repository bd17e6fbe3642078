package query

import (
	"errors"

	"cohort-copilot/core/logger"
	"cohort-copilot/core/middleware/rayid"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for query runs.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// RegisterRoutes registers the query routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Get("/", h.HandleIndex)
	app.Post("/query", h.HandleQuery)
}

// HandleIndex describes the service and the dataset state.
// @Summary Service index
// @Description Reports the service name, data source and dataset state.
// @Tags query
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) HandleIndex(c *fiber.Ctx) error {
	h.service.data.EnsureBackgroundLoad()
	state := h.service.data.Snapshot()
	return c.JSON(fiber.Map{
		"title":     "Cohort Copilot",
		"source":    h.service.data.SourceLabel(),
		"ready":     state.Ready,
		"status":    state.Status,
		"error":     state.Error,
		"fields":    state.Fields,
		"load_info": state.Info,
	})
}

// HandleQuery runs a natural-language query against the dataset.
// @Summary Run a query
// @Description Translates a natural-language query into a filter spec, applies collection scoping and returns the matched rows.
// @Tags query
// @Accept json
// @Produce json
// @Param request body query.Request true "Query"
// @Success 200 {object} query.Response
// @Failure 400 {object} map[string]string "Empty query or invalid body"
// @Failure 422 {object} map[string]string "Translation or validation failed"
// @Failure 503 {object} map[string]string "Dataset still loading"
// @Router /query [post]
func (h *Handler) HandleQuery(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	var req Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Please enter a query."})
	}

	rid, _ := c.Locals(rayid.LocalsKey).(string)
	l.Info("Running query", zap.String("q", req.Query), zap.Int("limit", req.Limit))

	resp, err := h.service.Run(c.UserContext(), rid, req)
	if err != nil {
		var notReady *NotReadyError
		if errors.As(err, &notReady) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": notReady.Message})
		}
		l.Error("Query failed", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("Query finished", zap.Int("matched", resp.MatchedCount))
	return c.JSON(resp)
}
