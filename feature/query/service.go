package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cohort-copilot/core/filter"
	"cohort-copilot/core/upstream"
	"cohort-copilot/feature/assist"
	"cohort-copilot/feature/dataset"

	"go.uber.org/zap"
)

// maxResultLimit caps the row limit a caller can request.
const maxResultLimit = 200000

// Translator converts a natural-language query into a filter spec.
// *assist.Translator satisfies it.
type Translator interface {
	Translate(ctx context.Context, nlQuery string, fields, collectionLines []string) (assist.Result, error)
}

// Historian records executed queries. The history feature satisfies it;
// a nil Historian disables recording.
type Historian interface {
	Record(ctx context.Context, rayID, nlQuery string, spec map[string]any, matchedCount int, took time.Duration)
}

// Exporter saves query results to object storage. The export feature
// satisfies it; a nil Exporter disables exporting.
type Exporter interface {
	Save(ctx context.Context, rayID string, payload any) (string, error)
}

// NotReadyError is returned while the dataset is still loading.
type NotReadyError struct {
	Message string
}

func (e *NotReadyError) Error() string { return e.Message }

// Request is one query run.
type Request struct {
	Query  string `json:"q"`
	Limit  int    `json:"limit"`
	Export bool   `json:"export"`
}

// Response is the full query result.
type Response struct {
	Query                  string            `json:"q"`
	Limit                  int               `json:"limit"`
	Spec                   map[string]any    `json:"spec"`
	Notes                  string            `json:"notes,omitempty"`
	RequestedCollections   []string          `json:"requested_collections"`
	AppliedCollections     []string          `json:"applied_collections"`
	UnavailableCollections []string          `json:"unavailable_collections"`
	MatchedCount           int               `json:"matched_count"`
	TableColumns           []string          `json:"table_columns"`
	TableRows              [][]string        `json:"table_rows"`
	ColumnsTruncated       bool              `json:"columns_truncated"`
	ServerSummary          string            `json:"server_summary,omitempty"`
	AssistantSummary       string            `json:"assistant_summary"`
	QueryToRun             string            `json:"query_to_run"`
	LoadInfo               *dataset.LoadInfo `json:"load_info,omitempty"`
	ExportObject           string            `json:"export_object,omitempty"`
}

// Service runs the query pipeline: translate, validate, scope, filter,
// present.
type Service struct {
	data       *dataset.Service
	translator Translator
	history    Historian
	exporter   Exporter
	logger     *zap.Logger
}

// NewService wires the pipeline. history and exporter may be nil.
func NewService(data *dataset.Service, translator Translator, history Historian, exporter Exporter, logger *zap.Logger) *Service {
	return &Service{
		data:       data,
		translator: translator,
		history:    history,
		exporter:   exporter,
		logger:     logger,
	}
}

// Run executes one natural-language query.
func (s *Service) Run(ctx context.Context, rayID string, req Request) (*Response, error) {
	start := time.Now()

	limit := req.Limit
	if limit < 0 {
		limit = 0
	}
	if limit > maxResultLimit {
		limit = maxResultLimit
	}

	s.data.EnsureBackgroundLoad()
	state := s.data.Snapshot()
	if !state.Ready {
		msg := state.Error
		if msg == "" {
			msg = "Data is still loading from the cohort API in the background. Please try again in a few seconds."
		}
		return nil, &NotReadyError{Message: msg}
	}

	ds, err := s.data.Data(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.translator.Translate(ctx, req.Query, ds.Fields, CatalogPromptLines())
	if err != nil {
		return nil, err
	}
	spec := res.Spec
	notes := res.Notes

	if subjectID := ExtractSubjectID(req.Query); subjectID != "" {
		if idField := PreferredIDField(ds.Fields); idField != "" {
			spec = AddSubjectIDConstraint(spec, idField, subjectID)
		}
	}

	allowed := make(map[string]struct{}, len(ds.Fields))
	for _, f := range ds.Fields {
		allowed[f] = struct{}{}
	}
	if err := filter.Validate(spec, allowed); err != nil {
		return nil, err
	}

	requested := unionSorted(
		NormalizeCollectionList(res.Collections),
		ExtractCollectionsFromText(req.Query),
	)

	var (
		matched       []map[string]any
		applied       []string
		unavailable   []string
		serverSummary string
	)
	if len(requested) > 0 {
		remoteRows, remoteMeta, remoteApplied, remoteUnavailable, remoteErr := s.runRemote(ctx, requested)
		if remoteErr == nil {
			matched, err = filter.Rows(map[string]any{"rows_as_objects": remoteRows}, spec)
			if err != nil {
				return nil, err
			}
			applied = remoteApplied
			unavailable = remoteUnavailable
			serverSummary = remoteServerSummary(remoteMeta)
		} else {
			if upstream.IsAuthError(remoteErr) {
				return nil, errors.New(
					"cohort session is unauthorized (401/403), so collection filters cannot be applied; " +
						"update the cookie header via POST /settings and run the query again")
			}
			// Remote API down: fall back to heuristic scoping on the local
			// cache.
			matched, err = filter.Rows(ds.Data, spec)
			if err != nil {
				return nil, err
			}
			matched, applied, unavailable = ApplyLocalCollectionFilters(matched, requested, ds.Fields)
			extra := fmt.Sprintf(
				"Remote cohort API unavailable; used local heuristic fallback. Collection scoping may be incomplete. Error: %v",
				remoteErr)
			if notes != "" {
				notes = notes + " | " + extra
			} else {
				notes = extra
			}
			serverSummary = "Remote cohort API call failed; fallback mode used."
			s.logger.Warn("Remote collection scoping failed, using local fallback", zap.Error(remoteErr))
		}
	} else {
		matched, err = filter.Rows(ds.Data, spec)
		if err != nil {
			return nil, err
		}
	}

	matchedCount := len(matched)
	shown := matched
	if limit > 0 && len(matched) > limit {
		shown = matched[:limit]
	}

	columns, tableRows, truncated := BuildResultsTable(shown, filter.FieldsInSpec(spec), 0)

	resp := &Response{
		Query:                  req.Query,
		Limit:                  limit,
		Spec:                   spec,
		Notes:                  notes,
		RequestedCollections:   emptyIfNil(requested),
		AppliedCollections:     emptyIfNil(applied),
		UnavailableCollections: emptyIfNil(unavailable),
		MatchedCount:           matchedCount,
		TableColumns:           columns,
		TableRows:              tableRows,
		ColumnsTruncated:       truncated,
		ServerSummary:          serverSummary,
		AssistantSummary:       BuildAssistantSummary(req.Query, matched, matchedCount, requested, applied, unavailable),
		QueryToRun:             BuildQueryToRunText(req.Query, requested, applied, spec),
		LoadInfo:               ds.Info,
	}

	if s.history != nil {
		s.history.Record(ctx, rayID, req.Query, spec, matchedCount, time.Since(start))
	}
	if req.Export && s.exporter != nil {
		object, err := s.exporter.Save(ctx, rayID, resp)
		if err != nil {
			s.logger.Warn("Export failed", zap.Error(err))
		} else {
			resp.ExportObject = object
		}
	}
	return resp, nil
}

func (s *Service) runRemote(ctx context.Context, requested []string) ([]map[string]any, map[string]any, []string, []string, error) {
	client, err := s.data.Client()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return runRemoteCollectionQuery(ctx, client, requested)
}

func unionSorted(lists ...[]string) []string {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, v := range list {
			set[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
