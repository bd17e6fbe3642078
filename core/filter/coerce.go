package filter

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var (
	genderStripRe = regexp.MustCompile(`[^a-z]+`)
	yearsRe       = regexp.MustCompile(`(?i)([-+]?\d+(?:\.\d+)?)\s*years?\b`)
	numberRe      = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)
)

func normStr(x string) string {
	return strings.ToLower(strings.TrimSpace(x))
}

// canonicalGender maps the many spellings of gender values onto "male" or
// "female". The second return reports whether x looked like a gender at all.
func canonicalGender(x any) (string, bool) {
	s, ok := x.(string)
	if !ok {
		return "", false
	}
	token := genderStripRe.ReplaceAllString(strings.ToLower(s), "")
	switch token {
	case "m", "male", "males", "man", "men":
		return "male", true
	case "f", "female", "females", "woman", "women":
		return "female", true
	}
	return "", false
}

// asFloat converts strict numeric types. Strings are not numbers here; see
// CoerceNumber for the lossy path.
func asFloat(x any) (float64, bool) {
	switch v := x.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// CoerceNumber converts a record value to a float64, best effort. Strings
// drop thousands separators; age-like strings ("20 years, 196 days") yield
// the year count; otherwise the first number in the string is used.
func CoerceNumber(x any) (float64, bool) {
	if f, ok := asFloat(x); ok {
		return f, true
	}
	s, ok := x.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	clean := strings.ReplaceAll(s, ",", "")
	if f, err := strconv.ParseFloat(clean, 64); err == nil {
		return f, true
	}
	if m := yearsRe.FindStringSubmatch(clean); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			return f, true
		}
	}
	if m := numberRe.FindString(clean); m != "" {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// textEqual compares two values the way the query surface expects: gender
// tokens canonicalized, strings case-insensitively, numbers numerically.
func textEqual(a, b any) bool {
	ga, aok := canonicalGender(a)
	gb, bok := canonicalGender(b)
	if aok && bok {
		return ga == gb
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return normStr(as) == normStr(bs)
	}
	return looseEqual(a, b)
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}
