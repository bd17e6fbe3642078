// Package query runs natural-language cohort queries end to end.
//
// A run translates the query into a JSON filter spec (feature/assist),
// injects an exact-match constraint when the query names a subject ID,
// validates the spec against the loaded fields, scopes the cohort by site
// collections (remotely via /cohort_def, or heuristically on the local
// cache when the remote API is down), filters the rows and renders a
// results table plus a conversational summary.
//
// Collection mentions are gathered from two sources and unioned: the
// model's "collections" output and a direct alias scan over the query
// text. The bare word "subject" is excluded from the alias scan because it
// appears in almost every query.
package query
