package login

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/edgebridge/edgebridge/pkg/identity"
	"github.com/edgebridge/edgebridge/pkg/keyset"
	"github.com/edgebridge/edgebridge/pkg/observability"
	"github.com/edgebridge/edgebridge/pkg/token"
)

// DefaultCookieName is the edge proxy's assertion cookie.
const DefaultCookieName = "CF_Authorization"

// DefaultMaxAttempts bounds the verify/refresh loop per login attempt.
const DefaultMaxAttempts = 3

// Outcome classifies how a login attempt ended. Values double as the
// outcome label on the login attempts counter.
type Outcome string

const (
	// OutcomeEstablished means a session was set and the redirect issued.
	OutcomeEstablished Outcome = "established"
	// OutcomeNoToken means the request carried no assertion cookie; the
	// host's ordinary login flow applies.
	OutcomeNoToken Outcome = "no_token"
	// OutcomeBackground means the request was an asynchronous
	// sub-request, which never drives a login.
	OutcomeBackground Outcome = "background"
	// OutcomeVerifyFailed means verification kept failing retriably
	// (or keys could not be loaded at all) until attempts ran out.
	OutcomeVerifyFailed Outcome = "verify_failed"
	// OutcomeRejected means the token was structurally untrustworthy for
	// this audience; no refresh can fix it.
	OutcomeRejected Outcome = "rejected"
	// OutcomeUnknownUser means verification passed but no local user
	// could be resolved or provisioned.
	OutcomeUnknownUser Outcome = "unknown_user"
	// OutcomeSessionFailed means the host session interface errored.
	OutcomeSessionFailed Outcome = "session_failed"
)

// Result reports a finished login attempt. User and Claims are set only
// when the pipeline got far enough to produce them.
type Result struct {
	Outcome  Outcome
	User     *identity.User
	Claims   *token.Claims
	Redirect string
}

// Established reports whether a session was set for a user.
func (r *Result) Established() bool { return r.Outcome == OutcomeEstablished }

// KeySource provides the issuer's current signing keys. force bypasses
// any cached copy.
type KeySource interface {
	Keys(ctx context.Context, force bool) (*keyset.KeySet, error)
}

// UserResolver maps verified claims to a local user.
type UserResolver interface {
	Resolve(ctx context.Context, claims *token.Claims) (*identity.User, error)
}

// SessionManager is the host application's session mechanism.
type SessionManager interface {
	// Establish authenticates the user for this client, typically by
	// setting a session cookie on the response.
	Establish(w http.ResponseWriter, r *http.Request, user *identity.User) error
	// Clear tears down the current session, if any.
	Clear(w http.ResponseWriter, r *http.Request) error
}

// Options configures an Establisher.
type Options struct {
	// CookieName is the assertion carrier. Defaults to DefaultCookieName.
	CookieName string

	// MaxAttempts bounds total verify attempts per login, each failed
	// attempt forcing one key refresh. Defaults to DefaultMaxAttempts.
	MaxAttempts int

	// DefaultRedirect is the post-login landing page used when the
	// request carries no valid redirect target.
	DefaultRedirect string

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Establisher drives the login pipeline: read the assertion from the
// request, verify it against cached keys with bounded refresh-and-retry,
// resolve the local user, establish the session, and redirect.
//
// Every failure is absorbed into a non-established Result so the host's
// ordinary login flow can proceed; the end user never sees an error.
type Establisher struct {
	keys     KeySource
	verifier *token.Verifier
	resolver UserResolver
	sessions SessionManager
	opts     Options
}

// NewEstablisher wires the pipeline's collaborators together.
func NewEstablisher(keys KeySource, verifier *token.Verifier, resolver UserResolver, sessions SessionManager, opts Options) *Establisher {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.DefaultRedirect == "" {
		opts.DefaultRedirect = "/"
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	return &Establisher{
		keys:     keys,
		verifier: verifier,
		resolver: resolver,
		sessions: sessions,
		opts:     opts,
	}
}

// Attempt runs one login attempt for the request. When it returns an
// established Result the redirect has already been written to w; for any
// other outcome the response is untouched and the caller decides how the
// ordinary flow continues.
func (e *Establisher) Attempt(w http.ResponseWriter, r *http.Request) *Result {
	if isBackgroundRequest(r) {
		return e.finish(&Result{Outcome: OutcomeBackground})
	}

	cookie, err := r.Cookie(e.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return e.finish(&Result{Outcome: OutcomeNoToken})
	}

	claims, outcome := e.verifyWithRetry(r.Context(), cookie.Value)
	if claims == nil {
		return e.finish(&Result{Outcome: outcome})
	}

	log := e.opts.Logger.WithField("email", claims.Email)

	user, err := e.resolver.Resolve(r.Context(), claims)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			log.WithError(err).Error("identity resolution failed")
		}
		return e.finish(&Result{Outcome: OutcomeUnknownUser, Claims: claims})
	}

	if err := e.sessions.Establish(w, r, user); err != nil {
		log.WithError(err).Error("failed to establish session")
		return e.finish(&Result{Outcome: OutcomeSessionFailed, User: user, Claims: claims})
	}

	target := SafeRedirect(r, e.opts.DefaultRedirect)
	http.Redirect(w, r, target, http.StatusFound)

	log.WithField("user_id", user.ID).Info("session established via sso")
	return e.finish(&Result{
		Outcome:  OutcomeEstablished,
		User:     user,
		Claims:   claims,
		Redirect: target,
	})
}

// verifyWithRetry loads keys and verifies the raw token, forcing one key
// refresh after each retriable failure, up to MaxAttempts total verify
// attempts. Claim and audience failures abort immediately.
func (e *Establisher) verifyWithRetry(ctx context.Context, raw string) (*token.Claims, Outcome) {
	start := time.Now()
	defer func() {
		if e.opts.Metrics != nil {
			e.opts.Metrics.VerifyDuration.Observe(time.Since(start).Seconds())
		}
	}()

	keys, err := e.keys.Keys(ctx, false)
	if err != nil {
		// One forced retry covers a corrupt or unreachable cached copy.
		keys, err = e.keys.Keys(ctx, true)
		if err != nil {
			e.opts.Logger.WithError(err).Warn("signing keys unavailable")
			return nil, OutcomeVerifyFailed
		}
	}

	for attempt := 1; ; attempt++ {
		claims, err := e.verifier.Verify(raw, keys)
		if err == nil {
			return claims, OutcomeEstablished
		}

		var sigErr *token.SignatureError
		if !errors.As(err, &sigErr) {
			e.opts.Logger.WithError(err).Info("assertion rejected")
			return nil, OutcomeRejected
		}

		if attempt >= e.opts.MaxAttempts {
			e.opts.Logger.WithError(err).
				WithField("attempts", attempt).
				Warn("verification failed after exhausting key refreshes")
			return nil, OutcomeVerifyFailed
		}

		// Likely a key-rotation race: refresh and try again. A failed
		// refresh keeps the current set so the attempt budget still
		// drains toward abort.
		refreshed, ferr := e.keys.Keys(ctx, true)
		if ferr != nil {
			e.opts.Logger.WithError(ferr).Warn("forced key refresh failed")
			continue
		}
		keys = refreshed
	}
}

func (e *Establisher) finish(result *Result) *Result {
	if e.opts.Metrics != nil {
		e.opts.Metrics.LoginAttemptsTotal.WithLabelValues(string(result.Outcome)).Inc()
	}
	return result
}

// isBackgroundRequest detects asynchronous sub-requests, which must
// never drive a login or emit a redirect.
func isBackgroundRequest(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}
