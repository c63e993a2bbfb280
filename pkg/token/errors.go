package token

import "fmt"

// SignatureError covers the retriable verification failures: unknown key
// ID, malformed token, signature mismatch, or a timestamp outside leeway.
// The caller is expected to force a key refresh and re-attempt, since a
// rotated signing key produces exactly this class of failure.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("token signature verification failed: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// ClaimError reports a structurally valid token missing a required claim.
// Not retriable: no key refresh can supply a missing claim.
type ClaimError struct {
	Claim string
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("token is missing required claim %q", e.Claim)
}

// AudienceMismatchError reports a token issued for a different
// application. Not retriable.
type AudienceMismatchError struct {
	Audience string
}

func (e *AudienceMismatchError) Error() string {
	return fmt.Sprintf("token audience %q is not accepted", e.Audience)
}
