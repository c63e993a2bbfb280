package token

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgebridge/edgebridge/pkg/keyset"
)

type signingFixture struct {
	key  *rsa.PrivateKey
	kid  string
	keys *keyset.KeySet
}

func newSigningFixture(t *testing.T, kid string) *signingFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return &signingFixture{
		key: key,
		kid: kid,
		keys: &keyset.KeySet{JSONWebKeySet: jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &key.PublicKey,
			KeyID:     kid,
			Algorithm: "RS256",
			Use:       "sig",
		}}}},
	}
}

// sign mints an RS256 token with the fixture's key; overrideKid substitutes
// a different kid header when non-empty.
func (f *signingFixture) sign(t *testing.T, claims jwt.MapClaims, overrideKid string) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = f.kid
	if overrideKid != "" {
		tok.Header["kid"] = overrideKid
	}
	raw, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return raw
}

func defaultClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"email": "u@x.com",
		"aud":   []string{"app-a"},
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"sub":   "subject-1",
		"iss":   "https://example.cloudflareaccess.com",
	}
}

func TestVerify_ValidToken(t *testing.T) {
	f := newSigningFixture(t, "kid1")
	v := NewVerifier(Audience{"app-a"}, time.Minute)

	claims, err := v.Verify(f.sign(t, defaultClaims(), ""), f.keys)
	require.NoError(t, err)

	assert.Equal(t, "u@x.com", claims.Email)
	assert.Equal(t, []string{"app-a"}, claims.Audience)
	assert.Equal(t, "subject-1", claims.Subject)
	assert.Equal(t, "https://example.cloudflareaccess.com", claims.Issuer)
	assert.False(t, claims.ExpiresAt.IsZero())
}

func TestVerify_UnknownKid(t *testing.T) {
	f := newSigningFixture(t, "kid1")
	v := NewVerifier(Audience{"app-a"}, time.Minute)

	_, err := v.Verify(f.sign(t, defaultClaims(), "rotated-kid"), f.keys)

	var sigErr *SignatureError
	assert.ErrorAs(t, err, &sigErr)
}

func TestVerify_MissingKid(t *testing.T) {
	f := newSigningFixture(t, "kid1")
	v := NewVerifier(Audience{"app-a"}, time.Minute)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, defaultClaims())
	raw, err := tok.SignedString(f.key)
	require.NoError(t, err)

	var sigErr *SignatureError
	_, err = v.Verify(raw, f.keys)
	assert.ErrorAs(t, err, &sigErr)
}

func TestVerify_SignatureMismatch(t *testing.T) {
	// Signed by a different key that claims the cached key's kid.
	f := newSigningFixture(t, "kid1")
	imposter := newSigningFixture(t, "kid1")

	v := NewVerifier(Audience{"app-a"}, time.Minute)

	_, err := v.Verify(imposter.sign(t, defaultClaims(), ""), f.keys)

	var sigErr *SignatureError
	assert.ErrorAs(t, err, &sigErr)
}

func TestVerify_MalformedToken(t *testing.T) {
	f := newSigningFixture(t, "kid1")
	v := NewVerifier(Audience{"app-a"}, time.Minute)

	var sigErr *SignatureError
	_, err := v.Verify("not.a.token", f.keys)
	assert.ErrorAs(t, err, &sigErr)
}

func TestVerify_ExpiryLeewayBoundary(t *testing.T) {
	f := newSigningFixture(t, "kid1")
	leeway := time.Minute
	v := NewVerifier(Audience{"app-a"}, leeway)

	// Expired just inside the leeway window: accepted.
	claims := defaultClaims()
	claims["exp"] = time.Now().Add(-leeway + 10*time.Second).Unix()
	_, err := v.Verify(f.sign(t, claims, ""), f.keys)
	assert.NoError(t, err)

	// Expired just beyond the leeway window: rejected, retriable class.
	claims = defaultClaims()
	claims["exp"] = time.Now().Add(-leeway - time.Second).Unix()
	_, err = v.Verify(f.sign(t, claims, ""), f.keys)

	var sigErr *SignatureError
	require.ErrorAs(t, err, &sigErr)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_NotBeforeBeyondLeeway(t *testing.T) {
	f := newSigningFixture(t, "kid1")
	v := NewVerifier(Audience{"app-a"}, time.Minute)

	claims := defaultClaims()
	claims["nbf"] = time.Now().Add(5 * time.Minute).Unix()

	var sigErr *SignatureError
	_, err := v.Verify(f.sign(t, claims, ""), f.keys)
	assert.ErrorAs(t, err, &sigErr)
}

func TestVerify_MissingEmail(t *testing.T) {
	f := newSigningFixture(t, "kid1")
	v := NewVerifier(Audience{"app-a"}, time.Minute)

	claims := defaultClaims()
	delete(claims, "email")

	var claimErr *ClaimError
	_, err := v.Verify(f.sign(t, claims, ""), f.keys)
	require.ErrorAs(t, err, &claimErr)
	assert.Equal(t, "email", claimErr.Claim)
}

func TestVerify_MissingAudience(t *testing.T) {
	f := newSigningFixture(t, "kid1")
	v := NewVerifier(Audience{"app-a"}, time.Minute)

	claims := defaultClaims()
	delete(claims, "aud")

	var claimErr *ClaimError
	_, err := v.Verify(f.sign(t, claims, ""), f.keys)
	require.ErrorAs(t, err, &claimErr)
	assert.Equal(t, "aud", claimErr.Claim)
}

func TestVerify_AudienceMismatch(t *testing.T) {
	f := newSigningFixture(t, "kid1")
	v := NewVerifier(Audience{"app-a", "app-b"}, time.Minute)

	claims := defaultClaims()
	claims["aud"] = []string{"app-c"}

	var audErr *AudienceMismatchError
	_, err := v.Verify(f.sign(t, claims, ""), f.keys)
	require.ErrorAs(t, err, &audErr)
	assert.Equal(t, "app-c", audErr.Audience)
}

func TestVerify_AudienceSetMembership(t *testing.T) {
	f := newSigningFixture(t, "kid1")
	v := NewVerifier(Audience{"app-a", "app-b"}, time.Minute)

	claims := defaultClaims()
	claims["aud"] = []string{"app-b"}

	_, err := v.Verify(f.sign(t, claims, ""), f.keys)
	assert.NoError(t, err)
}

func TestVerify_StringAudience(t *testing.T) {
	f := newSigningFixture(t, "kid1")
	v := NewVerifier(Audience{"app-a"}, time.Minute)

	claims := defaultClaims()
	claims["aud"] = "app-a"

	verified, err := v.Verify(f.sign(t, claims, ""), f.keys)
	require.NoError(t, err)
	assert.Equal(t, []string{"app-a"}, verified.Audience)
}

func TestVerify_RejectsUnsignedAlg(t *testing.T) {
	f := newSigningFixture(t, "kid1")
	v := NewVerifier(Audience{"app-a"}, time.Minute)

	tok := jwt.NewWithClaims(jwt.SigningMethodNone, defaultClaims())
	tok.Header["kid"] = "kid1"
	raw, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	var sigErr *SignatureError
	_, err = v.Verify(raw, f.keys)
	assert.ErrorAs(t, err, &sigErr)
}

func TestAudience_Contains(t *testing.T) {
	aud := Audience{"a", "b"}
	assert.True(t, aud.Contains("a"))
	assert.False(t, aud.Contains("c"))
	assert.False(t, Audience{}.Contains("a"))
}
