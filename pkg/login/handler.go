package login

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/edgebridge/edgebridge/pkg/observability"
)

// KeyFlusher clears cached signing keys, used at teardown.
type KeyFlusher interface {
	Flush(ctx context.Context) error
}

// BridgeOptions configures the HTTP surface of the bridge.
type BridgeOptions struct {
	// CookieName is the assertion carrier. Defaults to DefaultCookieName.
	CookieName string

	// DefaultRedirect is the post-logout destination when the assertion
	// cookie is absent.
	DefaultRedirect string

	// FallbackLoginURL receives aborted login attempts so the host's
	// ordinary login form takes over. When empty, aborted attempts get
	// 401 instead of a redirect.
	FallbackLoginURL string

	Logger *observability.Logger
}

// Bridge exposes the login pipeline and the logout bridge over HTTP.
type Bridge struct {
	establisher *Establisher
	sessions    SessionManager
	keys        KeyFlusher
	opts        BridgeOptions
}

// NewBridge wires the HTTP surface over an establisher and the host's
// session mechanism. keys may be nil when no cache teardown is wanted.
func NewBridge(establisher *Establisher, sessions SessionManager, keys KeyFlusher, opts BridgeOptions) *Bridge {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.DefaultRedirect == "" {
		opts.DefaultRedirect = "/"
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	return &Bridge{
		establisher: establisher,
		sessions:    sessions,
		keys:        keys,
		opts:        opts,
	}
}

// Register mounts the bridge's routes on the router.
func (b *Bridge) Register(router *mux.Router) {
	router.HandleFunc("/sso/login", b.HandleLogin).Methods(http.MethodGet)
	router.HandleFunc("/sso/logout", b.HandleLogout).Methods(http.MethodGet)
}

// HandleLogin runs a login attempt. Established attempts redirect to
// their post-login destination; everything else falls through to the
// host's ordinary login experience.
func (b *Bridge) HandleLogin(w http.ResponseWriter, r *http.Request) {
	result := b.establisher.Attempt(w, r)
	if result.Established() {
		return
	}

	switch result.Outcome {
	case OutcomeBackground:
		w.WriteHeader(http.StatusNoContent)
	default:
		if b.opts.FallbackLoginURL != "" {
			http.Redirect(w, r, b.opts.FallbackLoginURL, http.StatusFound)
			return
		}
		http.Error(w, "authentication required", http.StatusUnauthorized)
	}
}

// HandleLogout clears the local session and redirects: through the edge
// logout endpoint when the assertion cookie is still present, to the
// default destination otherwise.
func (b *Bridge) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := b.sessions.Clear(w, r); err != nil {
		b.opts.Logger.WithError(err).Warn("failed to clear session on logout")
	}
	target := LogoutRedirect(r, b.opts.CookieName, b.opts.DefaultRedirect)
	http.Redirect(w, r, target, http.StatusFound)
}

// Close flushes cached signing keys. Intended for process teardown.
func (b *Bridge) Close(ctx context.Context) error {
	if b.keys == nil {
		return nil
	}
	return b.keys.Flush(ctx)
}
