// Package logger wraps zap construction for the service.
//
// The level "debug" switches to zap's development config (ISO8601 timestamps,
// human-oriented defaults); anything else builds on the production config.
// WithRayID attaches the per-request ray id set by the rayid middleware so
// every log line of one request can be correlated.
package logger
