// Package dataset owns the in-memory copy of the upstream preview dataset.
//
// The full preview is fetched once, in the background, and cached until a
// reload or a connection change drops it. Concurrent loads are collapsed
// with singleflight so a burst of first requests triggers one upstream
// fetch. The package also exposes the runtime connection settings endpoint,
// since changing the connection invalidates the cache.
package dataset
