// Package export saves query results as JSON objects in the storage
// bucket.
//
// Exports live under the queries/ prefix, named by UTC timestamp and ray
// ID so a result can be traced back to its request log lines. The feature
// verifies (and creates) the bucket at load time and stays disabled when
// no storage client exists.
package export
