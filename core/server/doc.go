// Package server holds the HTTP server configuration section.
//
// The listen port defaults to 5050 and can be overridden either with
// SERVER_PORT or with the bare PORT variable used by container platforms.
package server
