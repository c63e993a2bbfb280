package login

import "net/http"

// LogoutPath is the issuer's edge logout endpoint, served on the
// application's own origin by the proxy in front of it.
const LogoutPath = "/cdn-cgi/access/logout"

// LogoutRedirect picks the post-logout destination. A request still
// carrying the assertion cookie is sent through the edge logout endpoint
// so the proxy session is torn down too; otherwise the host's default
// destination passes through unchanged.
func LogoutRedirect(r *http.Request, cookieName, defaultRedirect string) string {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return LogoutPath
	}
	return defaultRedirect
}
