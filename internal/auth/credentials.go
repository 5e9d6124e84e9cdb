package auth

import (
	"net/http"
	"strings"
)

// Credential lookup is an ordered chain: header, then query parameters, then
// cookie. First non-empty match wins. Header names are case-insensitive.

// AppCode resolves the application code from the request.
func AppCode(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("x-app-code")); v != "" {
		return v
	}
	q := r.URL.Query()
	for _, name := range []string{"appCode", "app_code"} {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// BearerToken resolves the bearer token from the Authorization header, the
// access_token/token query parameters, or the access_token cookie.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimSpace(h[len("Bearer "):])
		}
	}
	q := r.URL.Query()
	for _, name := range []string{"access_token", "token"} {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// HeaderOrQuery resolves an optional session attribute, preferring the
// header form of each name over its query form.
func HeaderOrQuery(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			return v
		}
	}
	q := r.URL.Query()
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
