package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MaxDepth bounds how deeply nested a spec may be.
const MaxDepth = 12

// MaxBranch bounds how many children an and/or node may have.
const MaxBranch = 50

// Matches reports whether one record satisfies the spec.
func Matches(record map[string]any, spec map[string]any) (bool, error) {
	if children, ok := specList(spec, "and"); ok {
		for _, child := range children {
			m, err := matchChild(record, child)
			if err != nil {
				return false, err
			}
			if !m {
				return false, nil
			}
		}
		return true, nil
	}
	if children, ok := specList(spec, "or"); ok {
		for _, child := range children {
			m, err := matchChild(record, child)
			if err != nil {
				return false, err
			}
			if m {
				return true, nil
			}
		}
		return false, nil
	}
	if inner, ok := spec["not"]; ok {
		m, err := matchChild(record, inner)
		if err != nil {
			return false, err
		}
		return !m, nil
	}

	// leaf condition
	field, ok := spec["field"].(string)
	if !ok {
		return false, fmt.Errorf("leaf condition missing 'field'")
	}
	return matchCondition(GetByPath(record, field), spec)
}

func matchChild(record map[string]any, child any) (bool, error) {
	node, ok := child.(map[string]any)
	if !ok {
		return false, fmt.Errorf("spec node must be an object, got %T", child)
	}
	return Matches(record, node)
}

func specList(spec map[string]any, key string) ([]any, bool) {
	raw, ok := spec[key]
	if !ok {
		return nil, false
	}
	list, _ := raw.([]any)
	return list, true
}

// Rows filters data["rows_as_objects"] down to the records matching the spec.
func Rows(data map[string]any, spec map[string]any) ([]map[string]any, error) {
	raw, ok := data["rows_as_objects"].([]any)
	if !ok {
		if typed, tok := data["rows_as_objects"].([]map[string]any); tok {
			return filterTyped(typed, spec)
		}
		return nil, fmt.Errorf("expected rows_as_objects to be a list")
	}
	out := make([]map[string]any, 0)
	for _, r := range raw {
		rec, ok := r.(map[string]any)
		if !ok {
			continue
		}
		m, err := Matches(rec, spec)
		if err != nil {
			return nil, err
		}
		if m {
			out = append(out, rec)
		}
	}
	return out, nil
}

func filterTyped(rows []map[string]any, spec map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0)
	for _, rec := range rows {
		m, err := Matches(rec, spec)
		if err != nil {
			return nil, err
		}
		if m {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Depth measures spec nesting.
func Depth(spec any) int {
	return depthAt(spec, 0)
}

func depthAt(spec any, depth int) int {
	node, ok := spec.(map[string]any)
	if !ok {
		return depth
	}
	if children, ok := specList(node, "and"); ok {
		max := depth
		for _, child := range children {
			if d := depthAt(child, depth+1); d > max {
				max = d
			}
		}
		return max
	}
	if children, ok := specList(node, "or"); ok {
		max := depth
		for _, child := range children {
			if d := depthAt(child, depth+1); d > max {
				max = d
			}
		}
		return max
	}
	if inner, ok := node["not"]; ok {
		return depthAt(inner, depth+1)
	}
	return depth + 1
}

// Validate enforces the structural contract on specs before they touch data.
// Specs come from a language model, so nothing about their shape is trusted.
func Validate(spec any, allowedFields map[string]struct{}) error {
	root, ok := spec.(map[string]any)
	if !ok {
		return fmt.Errorf("spec must be a JSON object")
	}
	if Depth(root) > MaxDepth {
		return fmt.Errorf("spec too deep/complex")
	}
	return validateNode(root, allowedFields)
}

func validateNode(node any, allowedFields map[string]struct{}) error {
	obj, ok := node.(map[string]any)
	if !ok {
		return fmt.Errorf("invalid node (must be object)")
	}

	_, hasAnd := obj["and"]
	_, hasOr := obj["or"]
	_, hasNot := obj["not"]
	if hasAnd || hasOr || hasNot {
		for _, key := range []string{"and", "or"} {
			raw, present := obj[key]
			if !present {
				continue
			}
			list, ok := raw.([]any)
			if !ok || len(list) > MaxBranch {
				return fmt.Errorf("'%s' must be a list (max %d)", key, MaxBranch)
			}
			for _, child := range list {
				if err := validateNode(child, allowedFields); err != nil {
					return err
				}
			}
		}
		if hasNot {
			if err := validateNode(obj["not"], allowedFields); err != nil {
				return err
			}
		}
		if extra := extraKeys(obj, "and", "or", "not"); len(extra) > 0 {
			return fmt.Errorf("unexpected keys in logical node: %v", extra)
		}
		return nil
	}

	// leaf condition
	if _, ok := obj["field"]; !ok {
		return fmt.Errorf("leaf condition missing 'field'")
	}
	if _, ok := obj["op"]; !ok {
		return fmt.Errorf("leaf condition missing 'op'")
	}
	field, ok := obj["field"].(string)
	if !ok {
		return fmt.Errorf("unknown field: %v", obj["field"])
	}
	if _, ok := allowedFields[field]; !ok {
		return fmt.Errorf("unknown field: %q", field)
	}
	op, ok := obj["op"].(string)
	if !ok {
		return fmt.Errorf("unsupported op: %v", obj["op"])
	}
	if _, ok := AllowedOps[op]; !ok {
		return fmt.Errorf("unsupported op: %q", op)
	}
	if op == "exists" || op == "isnull" {
		if extra := extraKeys(obj, "field", "op"); len(extra) > 0 {
			return fmt.Errorf("unexpected keys for op %s: %v", op, extra)
		}
		return nil
	}
	if _, ok := obj["value"]; !ok {
		return fmt.Errorf("leaf condition op %q requires 'value'", op)
	}
	if extra := extraKeys(obj, "field", "op", "value"); len(extra) > 0 {
		return fmt.Errorf("unexpected keys in leaf node: %v", extra)
	}
	return nil
}

func extraKeys(obj map[string]any, allowed ...string) []string {
	ok := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		ok[k] = struct{}{}
	}
	var extra []string
	for k := range obj {
		if _, found := ok[k]; !found {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}

// FieldsInSpec collects field names referenced by the spec, in first-seen
// order. Used to front-load result table columns.
func FieldsInSpec(spec map[string]any) []string {
	var out []string
	seen := make(map[string]struct{})
	var walk func(node any)
	walk = func(node any) {
		obj, ok := node.(map[string]any)
		if !ok {
			return
		}
		for _, key := range []string{"and", "or"} {
			if children, ok := specList(obj, key); ok {
				for _, child := range children {
					walk(child)
				}
				return
			}
		}
		if inner, ok := obj["not"]; ok {
			walk(inner)
			return
		}
		if field, ok := obj["field"].(string); ok {
			if _, dup := seen[field]; !dup {
				seen[field] = struct{}{}
				out = append(out, field)
			}
		}
	}
	walk(spec)
	return out
}

var opLabels = map[string]string{
	"eq": "=", "ne": "!=", "gt": ">", "gte": ">=", "lt": "<", "lte": "<=",
	"contains": "contains", "startswith": "starts with", "endswith": "ends with",
	"in": "in", "nin": "not in", "regex": "matches",
	"exists": "exists", "isnull": "is null",
}

// HumanText renders a spec as a one-line readable filter description.
func HumanText(spec any) string {
	obj, ok := spec.(map[string]any)
	if !ok {
		return ""
	}
	if children, ok := specList(obj, "and"); ok {
		items := renderChildren(children)
		if len(items) == 0 {
			return "No field constraints"
		}
		return strings.Join(items, " AND ")
	}
	if children, ok := specList(obj, "or"); ok {
		items := renderChildren(children)
		if len(items) == 0 {
			return ""
		}
		return "(" + strings.Join(items, " OR ") + ")"
	}
	if inner, ok := obj["not"]; ok {
		if s := HumanText(inner); s != "" {
			return "NOT (" + s + ")"
		}
		return ""
	}

	field, fok := obj["field"].(string)
	op, ook := obj["op"].(string)
	if !fok || !ook {
		return ""
	}
	label, ok := opLabels[op]
	if !ok {
		label = op
	}
	if op == "exists" || op == "isnull" {
		return field + " " + label
	}
	value := obj["value"]
	var rhs string
	switch v := value.(type) {
	case nil:
		rhs = "null"
	case string:
		rhs = strconv.Quote(v)
	case []any, map[string]any:
		b, _ := json.Marshal(v)
		rhs = string(b)
	default:
		rhs = CellText(value)
	}
	return field + " " + label + " " + rhs
}

func renderChildren(children []any) []string {
	var items []string
	for _, child := range children {
		if s := HumanText(child); s != "" {
			items = append(items, s)
		}
	}
	return items
}


// CellText renders a record value for display: nil is empty, booleans are
// lowercase, composites are JSON, numbers drop the trailing ".0".
func CellText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case bool:
		if v {
			return "true"
		}
		return "false"
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []any, map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}
