// Package cache defines the shared key-value store used to hold issuer
// signing keys across bridge instances, with Redis and in-memory
// implementations.
package cache
