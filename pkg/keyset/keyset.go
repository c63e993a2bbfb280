package keyset

import (
	"encoding/json"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v3"
)

// KeySet is the issuer's current set of public signing keys. It is
// immutable once fetched; a refresh replaces it wholesale.
type KeySet struct {
	jose.JSONWebKeySet

	// FetchedAt records when this set was retrieved from the issuer.
	// Zero for cached sets whose last-updated marker has expired.
	FetchedAt time.Time
}

// Lookup returns the first key matching the given key ID.
func (s *KeySet) Lookup(kid string) (*jose.JSONWebKey, bool) {
	matches := s.Key(kid)
	if len(matches) == 0 {
		return nil, false
	}
	return &matches[0], true
}

// parseKeySet decodes a JWKS document. The issuer's certs endpoint carries
// extra fields (public_cert, public_certs) alongside "keys"; those are
// ignored.
func parseKeySet(raw []byte) (*KeySet, error) {
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("invalid key set document: %w", err)
	}
	if len(set.Keys) == 0 {
		return nil, fmt.Errorf("key set document contains no keys")
	}
	return &KeySet{JSONWebKeySet: set}, nil
}
