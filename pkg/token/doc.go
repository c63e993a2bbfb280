// Package token verifies the edge proxy's signed assertions: signature
// against the issuer's key set, timestamp claims within a clock-skew
// leeway, and the required email and audience claims.
//
// Errors are split into a retriable class (SignatureError, fixable by a
// forced key refresh) and non-retriable classes (ClaimError,
// AudienceMismatchError) that abort the SSO path immediately.
package token
