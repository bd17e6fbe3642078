// Package upstream is the client for the cohort site's preview and cohort
// definition API.
//
// The site serves an authenticated browser session, so the client carries a
// raw Cookie header, a Referer and a browser User-Agent on every call.
// Preview responses put column metadata in extended_table_def.fields and the
// rows as positional lists; PreviewRows zips those into row objects keyed by
// concept name. FetchAllPreviewRows follows the paginator across pages.
//
// Cohort scoping works through POST /cohort_def/ transformations
// (clear_all, add_criteria_set); callers are expected to clear the cohort
// again when done so later unscoped preview fetches see the full dataset.
package upstream
