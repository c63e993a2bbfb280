package login

import (
	"net/http"
	"net/url"
	"strings"
)

// redirectParam carries the requested post-login destination.
const redirectParam = "redirect_to"

// SafeRedirect returns the request's redirect_to target when it is a
// well-formed same-site destination, and fallback otherwise. Accepted
// targets are either site-relative paths or absolute URLs on the
// request's own host; anything else (other hosts, protocol-relative
// paths, opaque schemes) falls back.
func SafeRedirect(r *http.Request, fallback string) string {
	requested := r.URL.Query().Get(redirectParam)
	if requested == "" {
		return fallback
	}

	parsed, err := url.Parse(requested)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" && parsed.Host == "" {
		if !strings.HasPrefix(requested, "/") || escapesSite(requested) || escapesSite(parsed.Path) {
			return fallback
		}
		return requested
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fallback
	}
	if parsed.Host != r.Host {
		return fallback
	}
	return requested
}

// escapesSite reports whether a rooted path would leave the site once a
// browser normalizes it: "//host" is protocol-relative, and "/\host" is
// treated as "//host" per the WHATWG URL parser. Checked against both
// the raw target and its decoded path so an encoded backslash cannot
// slip through.
func escapesSite(path string) bool {
	return strings.HasPrefix(path, "//") || strings.HasPrefix(path, `/\`)
}
