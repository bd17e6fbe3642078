package query

import (
	"context"
	"fmt"
	"time"

	"cohort-copilot/feature/dataset"
)

// clearCohortGrace bounds the best-effort cohort reset after a scoped
// query, even when the request context is already done.
const clearCohortGrace = 30 * time.Second

// runRemoteCollectionQuery scopes the cohort with real criteria sets via
// /cohort_def and fetches the scoped preview.
// Returns: (rows, meta, applied, unavailable, err)
func runRemoteCollectionQuery(ctx context.Context, client dataset.Fetcher, requestedCollections []string) ([]map[string]any, map[string]any, []string, []string, error) {
	var requested []string
	for _, c := range requestedCollections {
		if _, ok := collectionIDs[c]; ok {
			requested = append(requested, c)
		}
	}
	if len(requested) == 0 {
		return nil, map[string]any{}, nil, nil, nil
	}

	// Reset cohort criteria each query so filters do not accumulate
	// unexpectedly.
	if err := client.ClearCohort(ctx); err != nil {
		return nil, nil, nil, nil, err
	}
	// Avoid leaking scoped cohort filters into subsequent full-dataset
	// preview calls.
	defer func() {
		clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearCohortGrace)
		defer cancel()
		_ = client.ClearCohort(clearCtx)
	}()

	var applied, unavailable []string
	for _, cid := range requested {
		if err := client.AddCriteriaSet(ctx, cid); err != nil {
			unavailable = append(unavailable, cid)
		} else {
			applied = append(applied, cid)
		}
	}

	rows, previewMeta, err := client.FetchAllPreviewRows(ctx, client.PageSize())
	if err != nil {
		return nil, nil, nil, nil, err
	}
	countMeta, err := client.Count(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	meta := map[string]any{
		"record_count":  previewMeta["record_count"],
		"subject_count": previewMeta["subject_count"],
		"count":         countMeta["count"],
		"warnings":      orEmptyList(previewMeta["warnings"]),
		"errors":        orEmptyList(previewMeta["errors"]),
	}
	return rows, meta, applied, unavailable, nil
}

func orEmptyList(v any) any {
	if v == nil {
		return []any{}
	}
	return v
}

// remoteServerSummary condenses the remote counters for display.
func remoteServerSummary(meta map[string]any) string {
	return fmt.Sprintf("count=%v, subject_count=%v, record_count=%v",
		meta["count"], meta["subject_count"], meta["record_count"])
}
