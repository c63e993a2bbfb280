// Package keyset fetches and caches the issuer's public signing keys.
//
// Keys are served from a shared cache with a 7-day freshness window and
// replaced wholesale on forced refresh. A separate last-updated marker
// with a 30-day TTL records when the set was fetched, so hosts can report
// staleness independently of the key material itself.
package keyset
