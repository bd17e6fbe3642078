// Package filter evaluates JSON filter specs against flat cohort records.
//
// A spec is a plain JSON object:
//
//	{"and": [<spec|cond>, ...]}
//	{"or":  [<spec|cond>, ...]}
//	{"not": <spec|cond>}
//	{"field": "<field name>", "op": "<op>", "value": <any>}
//
// For the ops "exists" and "isnull" the value is omitted. Text comparisons
// are case-insensitive and gender-aware ("F", "female" and "Women" all match
// each other); numeric comparisons coerce strings best-effort, so
// "20 years, 196 days" compares as 20.
//
// Validate enforces the same structural limits the service accepts from the
// query translator: objects only, depth at most 12, and/or branches of at
// most 50 entries, known fields and ops, no unexpected keys.
package filter
