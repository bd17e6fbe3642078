package export

import (
	"context"

	"cohort-copilot/core/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the export feature. A nil client disables it.
func NewFeature(client storage.Client, bucket string, logger *zap.Logger) *Feature {
	svc := NewService(client, bucket, logger)
	return &Feature{service: svc, handler: NewHandler(svc, logger)}
}

// Service exposes the underlying service so the query feature can save
// runs through it.
func (f *Feature) Service() *Service {
	return f.service
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "export"
}

// IsEnabled checks if the feature is enabled.
func (f *Feature) IsEnabled() bool {
	return f.service.client != nil
}

// Load verifies the bucket and registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	if err := f.service.EnsureBucket(context.Background()); err != nil {
		return err
	}
	f.handler.RegisterRoutes(app)
	return nil
}
