package dataset

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cohort-copilot/core/upstream"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Fetcher is the upstream surface the dataset cache and the query pipeline
// need. *upstream.Client satisfies it; tests substitute a fake. The query
// feature obtains the current fetcher through Client so runtime connection
// changes apply to it too.
type Fetcher interface {
	ClearCohort(ctx context.Context) error
	AddCriteriaSet(ctx context.Context, collectionID string) error
	FetchAllPreviewRows(ctx context.Context, perPage int) ([]map[string]any, map[string]any, error)
	Count(ctx context.Context) (map[string]any, error)
	SourceLabel() string
	PageSize() int
}

// LoadInfo records how the last successful load went.
type LoadInfo struct {
	Duration time.Duration `json:"duration"`
	RowCount int           `json:"row_count"`
}

// State is a snapshot of the cache for status output.
type State struct {
	Ready  bool      `json:"ready"`
	Status string    `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`
	Fields []string  `json:"fields,omitempty"`
	Info   *LoadInfo `json:"load_info,omitempty"`
}

// Service caches the full preview dataset in memory. Loads run in the
// background and are collapsed through singleflight so concurrent callers
// share one upstream fetch.
type Service struct {
	logger      *zap.Logger
	buildClient func(upstream.Config) (Fetcher, error)

	sf singleflight.Group

	mu            sync.Mutex
	cfg           upstream.Config
	client        Fetcher
	clientErr     error
	data          map[string]any
	fields        []string
	info          *LoadInfo
	loading       bool
	loadStartedAt time.Time
	loadErr       string
}

// NewService builds the cache around the configured upstream connection.
// A missing connection is not fatal here; it surfaces on load and can be
// fixed at runtime via ApplySettings.
func NewService(cfg upstream.Config, logger *zap.Logger) *Service {
	s := &Service{
		logger: logger,
		cfg:    cfg,
		buildClient: func(c upstream.Config) (Fetcher, error) {
			return upstream.NewClient(c)
		},
	}
	s.client, s.clientErr = s.buildClient(cfg)
	return s
}

// NewServiceWithClient wires a prebuilt fetcher, used in tests.
func NewServiceWithClient(client Fetcher, logger *zap.Logger) *Service {
	return &Service{
		logger: logger,
		client: client,
		buildClient: func(upstream.Config) (Fetcher, error) {
			return client, nil
		},
	}
}

// SourceLabel describes the data source, or the configuration problem when
// there is none.
func (s *Service) SourceLabel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return "(upstream not configured)"
	}
	return s.client.SourceLabel()
}

func (s *Service) readyLocked() bool {
	return s.data != nil && s.fields != nil && s.info != nil
}

// EnsureBackgroundLoad starts a background load unless the cache is ready
// or a load is already running.
func (s *Service) EnsureBackgroundLoad() {
	s.mu.Lock()
	if s.readyLocked() || s.loading {
		s.mu.Unlock()
		return
	}
	s.loading = true
	s.loadStartedAt = time.Now()
	s.loadErr = ""
	s.mu.Unlock()

	go func() {
		if _, err := s.Data(context.Background()); err != nil {
			s.logger.Warn("Background dataset load failed", zap.Error(err))
		}
	}()
}

// Snapshot reports the current cache state without triggering a load.
func (s *Service) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readyLocked() {
		return State{
			Ready:  true,
			Fields: append([]string(nil), s.fields...),
			Info:   s.info,
		}
	}
	if s.loading {
		elapsed := int(time.Since(s.loadStartedAt).Seconds())
		if elapsed < 0 {
			elapsed = 0
		}
		return State{Status: fmt.Sprintf("Loading in background... %ds", elapsed)}
	}
	if s.loadErr != "" {
		return State{Error: s.loadErr}
	}
	return State{Status: "Preparing background load..."}
}

// Dataset bundles everything the query pipeline needs from the cache.
type Dataset struct {
	Data   map[string]any
	Fields []string
	Info   *LoadInfo
}

// Data returns the cached dataset, loading it first if needed. Concurrent
// callers share a single upstream fetch.
func (s *Service) Data(ctx context.Context) (*Dataset, error) {
	s.mu.Lock()
	if s.readyLocked() {
		ds := &Dataset{Data: s.data, Fields: s.fields, Info: s.info}
		s.loading = false
		s.mu.Unlock()
		return ds, nil
	}
	client := s.client
	clientErr := s.clientErr
	s.mu.Unlock()

	if client == nil {
		err := clientErr
		if err == nil {
			err = fmt.Errorf("upstream is not configured")
		}
		s.finishLoad(nil, nil, nil, err)
		return nil, err
	}

	v, err, _ := s.sf.Do("load", func() (any, error) {
		return s.load(ctx, client)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dataset), nil
}

func (s *Service) load(ctx context.Context, client Fetcher) (*Dataset, error) {
	start := time.Now()
	s.logger.Info("Loading dataset from upstream", zap.String("source", client.SourceLabel()))

	// A leftover scoped cohort would silently shrink the base dataset.
	if err := client.ClearCohort(ctx); err != nil {
		err = fmt.Errorf("failed to clear cohort filters before preview load: %w", err)
		s.finishLoad(nil, nil, nil, err)
		return nil, err
	}

	rows, meta, err := client.FetchAllPreviewRows(ctx, client.PageSize())
	if err != nil {
		s.finishLoad(nil, nil, nil, err)
		return nil, err
	}

	data := map[string]any{
		"rows_as_objects": rows,
		"source":          client.SourceLabel(),
		"meta":            meta,
	}
	var fields []string
	if len(rows) > 0 {
		for k := range rows[0] {
			fields = append(fields, k)
		}
		sort.Strings(fields)
	} else {
		fields = []string{}
	}
	info := &LoadInfo{Duration: time.Since(start), RowCount: len(rows)}

	s.finishLoad(data, fields, info, nil)
	s.logger.Info("Dataset loaded",
		zap.Int("rows", len(rows)),
		zap.Duration("took", info.Duration),
	)
	return &Dataset{Data: data, Fields: fields, Info: info}, nil
}

func (s *Service) finishLoad(data map[string]any, fields []string, info *LoadInfo, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.loadErr = err.Error()
		return
	}
	s.data = data
	s.fields = fields
	s.info = info
	s.loadErr = ""
}

// Reload drops the cache and starts a fresh background load.
func (s *Service) Reload() {
	s.mu.Lock()
	s.data = nil
	s.fields = nil
	s.info = nil
	s.loadErr = ""
	s.mu.Unlock()
	s.EnsureBackgroundLoad()
}

// Client returns the current upstream fetcher, or an error when the
// connection is not configured.
func (s *Service) Client() (Fetcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		if s.clientErr != nil {
			return nil, s.clientErr
		}
		return nil, fmt.Errorf("upstream is not configured")
	}
	return s.client, nil
}

// ApplySettings reconfigures the upstream connection at runtime. The
// preview URL is required; an empty cookie header or referer keeps the
// current value. The cache is dropped and reloaded in the background.
func (s *Service) ApplySettings(previewURL, cookieHeader, referer string) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	apiBase, previewPath, pageSize, err := upstream.ParsePreviewURL(previewURL, cfg.PageSize)
	if err != nil {
		return err
	}
	cfg.APIBase = apiBase
	cfg.PreviewPath = previewPath
	cfg.PageSize = pageSize
	if v := strings.TrimSpace(cookieHeader); v != "" {
		cfg.CookieHeader = v
	}
	if v := strings.TrimSpace(referer); v != "" {
		cfg.Referer = v
	}

	client, err := s.buildClient(cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.client = client
	s.clientErr = nil
	s.data = nil
	s.fields = nil
	s.info = nil
	s.loadErr = ""
	s.mu.Unlock()

	s.EnsureBackgroundLoad()
	return nil
}
