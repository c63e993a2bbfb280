// Package login drives the end-to-end SSO pipeline: it reads the edge
// proxy's assertion cookie, verifies it with bounded key-refresh retries,
// resolves the local user, establishes the host session, and redirects.
// It also bridges logout through the edge so the proxy session is torn
// down alongside the local one.
package login
