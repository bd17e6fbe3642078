package query

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"cohort-copilot/core/upstream"
	"cohort-copilot/feature/assist"
	"cohort-copilot/feature/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUpstream struct {
	mu           sync.Mutex
	baseRows     []map[string]any
	scopedRows   []map[string]any
	addErrs      map[string]error
	fetchErr     error
	scoped       bool
	clearCount   int
	criteriaSets []string
}

func (f *fakeUpstream) ClearCohort(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCount++
	f.scoped = false
	return nil
}

func (f *fakeUpstream) AddCriteriaSet(_ context.Context, cid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.addErrs[cid]; err != nil {
		return err
	}
	f.scoped = true
	f.criteriaSets = append(f.criteriaSets, cid)
	return nil
}

func (f *fakeUpstream) FetchAllPreviewRows(context.Context, int) ([]map[string]any, map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, nil, f.fetchErr
	}
	rows := f.baseRows
	if f.scoped {
		rows = f.scopedRows
	}
	meta := map[string]any{"record_count": len(rows), "subject_count": len(rows)}
	return rows, meta, nil
}

func (f *fakeUpstream) Count(context.Context) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.baseRows
	if f.scoped {
		rows = f.scopedRows
	}
	return map[string]any{"count": len(rows)}, nil
}

func (f *fakeUpstream) SourceLabel() string { return "fake://preview" }
func (f *fakeUpstream) PageSize() int       { return 100 }

type fakeTranslator struct {
	result assist.Result
	err    error
}

func (f *fakeTranslator) Translate(context.Context, string, []string, []string) (assist.Result, error) {
	return f.result, f.err
}

type recordedHistory struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordedHistory) Record(_ context.Context, rayID, nlQuery string, _ map[string]any, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, rayID+":"+nlQuery)
}

func baseRows() []map[string]any {
	return []map[string]any{
		{"Blinded ID": "1-00079", "Gender": "Female", "Lab Results": "CBC"},
		{"Blinded ID": "1-00080", "Gender": "Male", "Lab Results": ""},
		{"Blinded ID": "1-00081", "Gender": "Female", "Lab Results": nil},
	}
}

func newQueryService(t *testing.T, up dataset.Fetcher, tr Translator, hist Historian) *Service {
	t.Helper()
	data := dataset.NewServiceWithClient(up, zap.NewNop())
	_, err := data.Data(context.Background())
	require.NoError(t, err)
	return NewService(data, tr, hist, nil, zap.NewNop())
}

func TestRunPlainQuery(t *testing.T) {
	up := &fakeUpstream{baseRows: baseRows()}
	tr := &fakeTranslator{result: assist.Result{
		Spec: map[string]any{"field": "Gender", "op": "eq", "value": "Female"},
	}}
	hist := &recordedHistory{}
	svc := newQueryService(t, up, tr, hist)

	resp, err := svc.Run(context.Background(), "ray-1", Request{Query: "show me females"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.MatchedCount)
	assert.Equal(t, "Gender", resp.TableColumns[0])
	assert.Contains(t, resp.AssistantSummary, "2 matching people")
	assert.Empty(t, resp.RequestedCollections)
	assert.Equal(t, []string{"ray-1:show me females"}, hist.entries)
}

func TestRunAppliesLimit(t *testing.T) {
	up := &fakeUpstream{baseRows: baseRows()}
	tr := &fakeTranslator{result: assist.Result{Spec: map[string]any{"and": []any{}}}}
	svc := newQueryService(t, up, tr, nil)

	resp, err := svc.Run(context.Background(), "ray-1", Request{Query: "everyone", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.MatchedCount)
	assert.Len(t, resp.TableRows, 1)

	resp, err = svc.Run(context.Background(), "ray-1", Request{Query: "everyone", Limit: maxResultLimit + 5})
	require.NoError(t, err)
	assert.Equal(t, maxResultLimit, resp.Limit)
}

func TestRunInjectsSubjectID(t *testing.T) {
	up := &fakeUpstream{baseRows: baseRows()}
	tr := &fakeTranslator{result: assist.Result{Spec: map[string]any{"and": []any{}}}}
	svc := newQueryService(t, up, tr, nil)

	resp, err := svc.Run(context.Background(), "ray-1", Request{Query: "tell me about 1-00079"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.MatchedCount)
	assert.Contains(t, resp.AssistantSummary, "I found subject 1-00079")
}

func TestRunRemoteCollectionScoping(t *testing.T) {
	up := &fakeUpstream{
		baseRows:   baseRows(),
		scopedRows: baseRows()[:1],
	}
	tr := &fakeTranslator{result: assist.Result{
		Spec:        map[string]any{"and": []any{}},
		Collections: []string{"Labs"},
	}}
	svc := newQueryService(t, up, tr, nil)

	resp, err := svc.Run(context.Background(), "ray-1", Request{Query: "everyone with lab data"})
	require.NoError(t, err)
	assert.Equal(t, []string{"emrdata_labs"}, resp.RequestedCollections)
	assert.Equal(t, []string{"emrdata_labs"}, resp.AppliedCollections)
	assert.Equal(t, 1, resp.MatchedCount)
	assert.Contains(t, resp.ServerSummary, "count=1")

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, []string{"emrdata_labs"}, up.criteriaSets)
	// Initial load + pre-query clear + post-query clear.
	assert.GreaterOrEqual(t, up.clearCount, 3)
}

func TestRunRejectedCriteriaSetReportedUnavailable(t *testing.T) {
	up := &fakeUpstream{
		baseRows:   baseRows(),
		scopedRows: baseRows()[:1],
		addErrs:    map[string]error{"emrdata_cpt": errors.New("not available")},
	}
	tr := &fakeTranslator{result: assist.Result{
		Spec:        map[string]any{"and": []any{}},
		Collections: []string{"Labs", "CPT"},
	}}
	svc := newQueryService(t, up, tr, nil)

	resp, err := svc.Run(context.Background(), "ray-1", Request{Query: "lab and cpt data"})
	require.NoError(t, err)
	assert.Equal(t, []string{"emrdata_labs"}, resp.AppliedCollections)
	assert.Equal(t, []string{"emrdata_cpt"}, resp.UnavailableCollections)
}

func TestRunFallsBackWhenRemoteDown(t *testing.T) {
	up := &fakeUpstream{baseRows: baseRows()}
	tr := &fakeTranslator{result: assist.Result{
		Spec:        map[string]any{"and": []any{}},
		Collections: []string{"Labs"},
	}}
	svc := newQueryService(t, up, tr, nil)
	// Break the remote path after the initial dataset load succeeded.
	up.mu.Lock()
	up.fetchErr = errors.New("connection refused")
	up.mu.Unlock()

	resp, err := svc.Run(context.Background(), "ray-1", Request{Query: "everyone with lab data"})
	require.NoError(t, err)
	assert.Equal(t, []string{"emrdata_labs"}, resp.AppliedCollections)
	assert.Equal(t, 1, resp.MatchedCount)
	assert.Contains(t, resp.Notes, "local heuristic fallback")
	assert.Equal(t, "Remote cohort API call failed; fallback mode used.", resp.ServerSummary)
}

func TestRunAuthErrorIsFatal(t *testing.T) {
	up := &fakeUpstream{baseRows: baseRows()}
	tr := &fakeTranslator{result: assist.Result{
		Spec:        map[string]any{"and": []any{}},
		Collections: []string{"Labs"},
	}}
	svc := newQueryService(t, up, tr, nil)
	up.mu.Lock()
	up.fetchErr = &upstream.StatusError{Code: http.StatusUnauthorized, Body: "expired"}
	up.mu.Unlock()

	_, err := svc.Run(context.Background(), "ray-1", Request{Query: "everyone with lab data"})
	assert.ErrorContains(t, err, "unauthorized")
}

func TestRunRejectsUnknownField(t *testing.T) {
	up := &fakeUpstream{baseRows: baseRows()}
	tr := &fakeTranslator{result: assist.Result{
		Spec: map[string]any{"field": "No Such Field", "op": "eq", "value": "x"},
	}}
	svc := newQueryService(t, up, tr, nil)

	_, err := svc.Run(context.Background(), "ray-1", Request{Query: "whatever"})
	assert.ErrorContains(t, err, "No Such Field")
}

func TestRunNotReady(t *testing.T) {
	up := &fakeUpstream{baseRows: baseRows()}
	data := dataset.NewServiceWithClient(slowFetcher{up}, zap.NewNop())
	svc := NewService(data, &fakeTranslator{}, nil, nil, zap.NewNop())

	_, err := svc.Run(context.Background(), "ray-1", Request{Query: "anything"})
	var notReady *NotReadyError
	assert.ErrorAs(t, err, &notReady)
}

// slowFetcher delays loads enough that Run sees a not-ready cache.
type slowFetcher struct{ *fakeUpstream }

func (s slowFetcher) FetchAllPreviewRows(ctx context.Context, perPage int) ([]map[string]any, map[string]any, error) {
	time.Sleep(150 * time.Millisecond)
	return s.fakeUpstream.FetchAllPreviewRows(ctx, perPage)
}
