package upstream

import (
	"context"
	"net/url"
	"strconv"
)

// PreviewRows converts a preview payload (column metadata in
// extended_table_def.fields plus positional rows in data) into row objects
// keyed by concept name.
func PreviewRows(payload map[string]any) []map[string]any {
	var keys []string
	if def, ok := payload["extended_table_def"].(map[string]any); ok {
		if fields, ok := def["fields"].([]any); ok {
			for _, f := range fields {
				fm, ok := f.(map[string]any)
				if !ok {
					continue
				}
				keys = append(keys, fieldKey(fm))
			}
		}
	}

	rawRows, _ := payload["data"].([]any)
	out := make([]map[string]any, 0, len(rawRows))
	for _, r := range rawRows {
		row, ok := r.([]any)
		if !ok {
			continue
		}
		obj := make(map[string]any, len(keys))
		for i := 0; i < len(keys) && i < len(row); i++ {
			obj[keys[i]] = row[i]
		}
		out = append(out, obj)
	}
	return out
}

func fieldKey(field map[string]any) string {
	for _, candidate := range []string{"concept_name", "label", "entry_id"} {
		if s, ok := field[candidate].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// PreviewMeta extracts the bookkeeping part of a preview payload.
func PreviewMeta(payload map[string]any) map[string]any {
	meta := map[string]any{
		"record_count":  payload["record_count"],
		"subject_count": payload["subject_count"],
		"paginator":     payload["paginator"],
	}
	if w, ok := payload["warnings"]; ok {
		meta["warnings"] = w
	} else {
		meta["warnings"] = []any{}
	}
	if e, ok := payload["errors"]; ok {
		meta["errors"] = e
	} else {
		meta["errors"] = []any{}
	}
	return meta
}

// FetchAllPreviewRows pages through the preview endpoint and returns every
// row plus the first page's meta. perPage <= 0 uses the configured page
// size.
func (c *Client) FetchAllPreviewRows(ctx context.Context, perPage int) ([]map[string]any, map[string]any, error) {
	if perPage < 1 {
		perPage = c.pageSize
	}

	first, err := c.GetJSON(ctx, c.previewPath, previewParams(1, perPage))
	if err != nil {
		return nil, nil, err
	}
	rows := PreviewRows(first)

	lastPage := 1
	if paginator, ok := first["paginator"].(map[string]any); ok {
		if lp, ok := paginator["last_page"].(float64); ok && lp >= 1 {
			lastPage = int(lp)
		}
	}
	for page := 2; page <= lastPage; page++ {
		next, err := c.GetJSON(ctx, c.previewPath, previewParams(page, perPage))
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, PreviewRows(next)...)
	}

	return rows, PreviewMeta(first), nil
}

func previewParams(page, perPage int) url.Values {
	return url.Values{
		"page":             []string{strconv.Itoa(page)},
		"records_per_page": []string{strconv.Itoa(perPage)},
	}
}
