package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// AllowedOps is the set of leaf condition operators the engine evaluates.
var AllowedOps = map[string]struct{}{
	"exists": {}, "isnull": {},
	"eq": {}, "ne": {}, "in": {}, "nin": {},
	"contains": {}, "startswith": {}, "endswith": {}, "regex": {},
	"gt": {}, "gte": {}, "lt": {}, "lte": {},
}

// GetByPath performs a dot-path lookup into a record, e.g.
// GetByPath(record, "meta.paginator.current_page"). Plain field names (which
// may themselves contain spaces) are the common case.
func GetByPath(obj map[string]any, path string) any {
	if path == "" {
		return nil
	}
	var cur any = obj
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[key]
		if !ok {
			return nil
		}
	}
	return cur
}

// matchCondition evaluates one leaf condition against an already-resolved
// record value.
func matchCondition(value any, cond map[string]any) (bool, error) {
	op := "eq"
	if raw, ok := cond["op"]; ok {
		s, ok := raw.(string)
		if !ok {
			return false, fmt.Errorf("op must be a string, got %T", raw)
		}
		op = s
	}
	expected := cond["value"]

	switch op {
	case "exists":
		return value != nil, nil
	case "isnull":
		return value == nil, nil
	case "eq":
		return textEqual(value, expected), nil
	case "ne":
		return !textEqual(value, expected), nil
	case "in", "nin":
		list, ok := toAnyList(expected)
		if !ok {
			// A non-list expected value matches nothing for "in" and
			// everything for "nin".
			return op == "nin", nil
		}
		found := false
		for _, item := range list {
			if textEqual(value, item) {
				found = true
				break
			}
		}
		if op == "in" {
			return found, nil
		}
		return !found, nil
	case "contains", "startswith", "endswith", "regex":
		if value == nil {
			return false, nil
		}
		s := CellText(value)
		t := ""
		if expected != nil {
			t = CellText(expected)
		}
		switch op {
		case "contains":
			return strings.Contains(strings.ToLower(s), strings.ToLower(t)), nil
		case "startswith":
			return strings.HasPrefix(strings.ToLower(s), strings.ToLower(t)), nil
		case "endswith":
			return strings.HasSuffix(strings.ToLower(s), strings.ToLower(t)), nil
		case "regex":
			re, err := regexp.Compile("(?i)" + t)
			if err != nil {
				return false, nil
			}
			return re.MatchString(s), nil
		}
	case "gt", "gte", "lt", "lte":
		a, aok := CoerceNumber(value)
		b, bok := CoerceNumber(expected)
		if !aok || !bok {
			return false, nil
		}
		switch op {
		case "gt":
			return a > b, nil
		case "gte":
			return a >= b, nil
		case "lt":
			return a < b, nil
		case "lte":
			return a <= b, nil
		}
	}
	return false, fmt.Errorf("unsupported op: %q", op)
}

func toAnyList(x any) ([]any, bool) {
	switch v := x.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
