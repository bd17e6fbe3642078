package query

import (
	"regexp"
	"strings"

	"cohort-copilot/core/filter"
)

// Cohort subject IDs are usually shaped like "1-00079".
var subjectIDRe = regexp.MustCompile(`\b\d{1,4}-\d{3,}\b`)

// preferredIDFields lists the field names that identify a person, in
// preference order.
var preferredIDFields = []string{
	"Blinded ID",
	"Subject ID",
	"subject_id",
	"Subject",
	"ID",
	"id",
	"Sample ID (All)",
}

// ExtractSubjectID pulls a subject ID token out of a free-text query.
func ExtractSubjectID(nlQuery string) string {
	return subjectIDRe.FindString(nlQuery)
}

func preferredIDFieldFromKeys(keys map[string]struct{}) string {
	for _, k := range preferredIDFields {
		if _, ok := keys[k]; ok {
			return k
		}
	}
	return ""
}

// PreferredIDField finds the identifying field among the dataset fields.
func PreferredIDField(fields []string) string {
	keys := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		keys[f] = struct{}{}
	}
	return preferredIDFieldFromKeys(keys)
}

// preferredIDFieldFromRows samples the first rows for an identifying field.
func preferredIDFieldFromRows(rows []map[string]any) string {
	if len(rows) == 0 {
		return ""
	}
	keys := make(map[string]struct{})
	for i, r := range rows {
		if i >= 10 {
			break
		}
		for k := range r {
			keys[k] = struct{}{}
		}
	}
	return preferredIDFieldFromKeys(keys)
}

// AddSubjectIDConstraint ANDs an exact-match condition on the identifying
// field into the spec, unless an equivalent condition is already present.
func AddSubjectIDConstraint(spec map[string]any, idField, subjectID string) map[string]any {
	wanted := map[string]any{"field": idField, "op": "eq", "value": subjectID}

	var hasWanted func(node any) bool
	hasWanted = func(node any) bool {
		obj, ok := node.(map[string]any)
		if !ok {
			return false
		}
		if obj["field"] == idField && obj["op"] == "eq" {
			return strings.TrimSpace(filter.CellText(obj["value"])) == subjectID
		}
		if children, ok := obj["and"].([]any); ok {
			for _, ch := range children {
				if hasWanted(ch) {
					return true
				}
			}
			return false
		}
		if children, ok := obj["or"].([]any); ok {
			for _, ch := range children {
				if hasWanted(ch) {
					return true
				}
			}
			return false
		}
		if inner, ok := obj["not"]; ok {
			return hasWanted(inner)
		}
		return false
	}

	if hasWanted(spec) {
		return spec
	}
	if children, ok := spec["and"].([]any); ok {
		return map[string]any{"and": append(append([]any{}, children...), wanted)}
	}
	return map[string]any{"and": []any{spec, wanted}}
}
