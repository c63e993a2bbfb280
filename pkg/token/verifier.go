package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edgebridge/edgebridge/pkg/keyset"
)

// DefaultLeeway is the clock-skew tolerance applied to timestamp claims.
const DefaultLeeway = 60 * time.Second

// Audience is the set of acceptable "aud" values for this application.
// A single-element set behaves as an exact-match string.
type Audience []string

// Contains reports whether value is an acceptable audience.
func (a Audience) Contains(value string) bool {
	for _, v := range a {
		if v == value {
			return true
		}
	}
	return false
}

// Claims is the decoded, signature-checked payload of an assertion.
type Claims struct {
	Email     string
	Subject   string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verifier validates inbound assertions against a signing key set. It is
// stateless and safe for concurrent use.
type Verifier struct {
	audience Audience
	parser   *jwt.Parser
}

// NewVerifier creates a verifier for the given acceptable audiences and
// clock-skew leeway. A non-positive leeway falls back to DefaultLeeway.
func NewVerifier(audience Audience, leeway time.Duration) *Verifier {
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	return &Verifier{
		audience: audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
			jwt.WithLeeway(leeway),
		),
	}
}

// Verify parses raw, checks its signature against keys, validates the
// timestamp claims within leeway, and enforces the required claims and
// audience. It returns *SignatureError for anything a key refresh might
// fix, and *ClaimError / *AudienceMismatchError for tokens that are
// structurally untrustworthy for this application.
func (v *Verifier) Verify(raw string, keys *keyset.KeySet) (*Claims, error) {
	parsed, err := v.parser.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token header has no kid")
		}
		key, ok := keys.Lookup(kid)
		if !ok {
			return nil, fmt.Errorf("no signing key with kid %q", kid)
		}
		return key.Key, nil
	})
	if err != nil {
		// Malformed tokens, unknown kids, bad signatures, and expired or
		// not-yet-valid timestamps all land here; a stale cached key set
		// explains every one of them, so the whole class is retriable.
		return nil, &SignatureError{Err: err}
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, &SignatureError{Err: fmt.Errorf("unexpected claims type %T", parsed.Claims)}
	}

	email, _ := mc["email"].(string)
	if email == "" {
		return nil, &ClaimError{Claim: "email"}
	}

	aud, err := mc.GetAudience()
	if err != nil || len(aud) == 0 {
		return nil, &ClaimError{Claim: "aud"}
	}
	if !v.audience.Contains(aud[0]) {
		return nil, &AudienceMismatchError{Audience: aud[0]}
	}

	claims := &Claims{
		Email:    email,
		Audience: aud,
	}
	if sub, err := mc.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if iss, err := mc.GetIssuer(); err == nil {
		claims.Issuer = iss
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims, nil
}
