package login

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/edgebridge/edgebridge/pkg/cache"
	"github.com/edgebridge/edgebridge/pkg/identity"
)

// DefaultSessionCookie names the local session cookie.
const DefaultSessionCookie = "edgebridge_session"

// DefaultSessionTTL bounds how long an established session lives.
const DefaultSessionTTL = 24 * time.Hour

const sessionKeyPrefix = "session:"

// CacheSessions is a SessionManager backed by the shared cache: each
// session is a random ID cookie mapping to the user ID, so any instance
// behind the same backend can resolve it.
type CacheSessions struct {
	cache      cache.Cache
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewCacheSessions creates a session manager over the cache backend.
// secure marks the cookie Secure, for deployments behind TLS.
func NewCacheSessions(c cache.Cache, cookieName string, ttl time.Duration, secure bool) *CacheSessions {
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &CacheSessions{cache: c, cookieName: cookieName, ttl: ttl, secure: secure}
}

func (s *CacheSessions) Establish(w http.ResponseWriter, r *http.Request, user *identity.User) error {
	id := uuid.NewString()
	key := sessionKeyPrefix + id
	if err := s.cache.Set(r.Context(), key, strconv.FormatInt(user.ID, 10), s.ttl); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *CacheSessions) Clear(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(s.cookieName)
	if err == nil && cookie.Value != "" {
		if err := s.cache.Delete(r.Context(), sessionKeyPrefix+cookie.Value); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// UserID resolves the request's session cookie to a user ID. A missing
// or expired session returns cache.ErrCacheMiss.
func (s *CacheSessions) UserID(r *http.Request) (int64, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return 0, cache.ErrCacheMiss
	}
	raw, err := s.cache.Get(r.Context(), sessionKeyPrefix+cookie.Value)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt session entry: %w", err)
	}
	return id, nil
}
