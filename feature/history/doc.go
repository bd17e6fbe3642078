// Package history records executed queries in the optional database.
//
// Recording is best effort: a failed insert is logged and never fails the
// query run that triggered it. When no database connection exists the
// feature stays disabled and /history is not registered.
package history
