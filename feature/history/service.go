package history

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// defaultRecentLimit bounds /history responses when no limit is given.
const defaultRecentLimit = 50

// maxRecentLimit is the hard cap for /history responses.
const maxRecentLimit = 500

// Service persists executed queries.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates the history service. db may be nil; the feature is
// disabled then.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Migrate creates or updates the query_history table.
func (s *Service) Migrate() error {
	return s.db.AutoMigrate(&Entry{})
}

// Record stores one executed query. Recording is best effort: failures are
// logged and never fail the query itself.
func (s *Service) Record(ctx context.Context, rayID, nlQuery string, spec map[string]any, matchedCount int, took time.Duration) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		s.logger.Warn("Failed to encode spec for history", zap.Error(err))
		specJSON = []byte("{}")
	}
	entry := Entry{
		RayID:        rayID,
		Query:        nlQuery,
		Spec:         string(specJSON),
		MatchedCount: matchedCount,
		DurationMs:   took.Milliseconds(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Warn("Failed to record query history", zap.Error(err))
	}
}

// Recent returns the newest entries, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	var entries []Entry
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
