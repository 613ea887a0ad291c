// Package types holds the wire shapes shared by the HTTP handlers and
// middleware: the error envelope and JSON response helpers.
package types
