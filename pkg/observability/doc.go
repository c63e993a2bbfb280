// Package observability provides structured logging and Prometheus metrics
// for the SSO bridge.
package observability
