package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"cohort-copilot/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// objectPrefix is where query exports live inside the bucket.
const objectPrefix = "queries/"

// Object describes one saved export.
type Object struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Service saves query results as JSON objects in the export bucket.
type Service struct {
	client storage.Client
	bucket string
	logger *zap.Logger
}

// NewService creates the export service.
func NewService(client storage.Client, bucket string, logger *zap.Logger) *Service {
	return &Service{client: client, bucket: bucket, logger: logger}
}

// EnsureBucket creates the export bucket if it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking export bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating export bucket %q: %w", s.bucket, err)
	}
	s.logger.Info("Created export bucket", zap.String("bucket", s.bucket))
	return nil
}

// Save writes the payload as a timestamped JSON object and returns the
// object name.
func (s *Service) Save(ctx context.Context, rayID string, payload any) (string, error) {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding export payload: %w", err)
	}

	name := fmt.Sprintf("%s%s-%s.json", objectPrefix, time.Now().UTC().Format("20060102T150405"), rayID)
	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("uploading export %q: %w", name, err)
	}
	return name, nil
}

// List enumerates saved exports, newest first.
func (s *Service) List(ctx context.Context) ([]Object, error) {
	objects := make([]Object, 0)
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    objectPrefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("listing exports: %w", info.Err)
		}
		objects = append(objects, Object{
			Name:         info.Key,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	return objects, nil
}

// Get downloads one export by object name.
func (s *Service) Get(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("downloading export %q: %w", name, err)
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// Delete removes one export by object name.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("deleting export %q: %w", name, err)
	}
	return nil
}

// validateName keeps object access inside the export prefix.
func validateName(name string) error {
	if !strings.HasPrefix(name, objectPrefix) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid export name %q", name)
	}
	return nil
}
