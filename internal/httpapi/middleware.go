package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/relayline/chathub/internal/auth"
)

type contextKey int

const (
	claimsKey contextKey = iota
	ticketKey
)

// requestClaims returns the validated token claims, if any.
func requestClaims(r *http.Request) *auth.Claims {
	c, _ := r.Context().Value(claimsKey).(*auth.Claims)
	return c
}

func requestTicket(r *http.Request) string {
	t, _ := r.Context().Value(ticketKey).(string)
	return t
}

func requestUserName(r *http.Request) string {
	if c := requestClaims(r); c != nil {
		return c.UserName
	}
	return ""
}

// withTicket assigns each request an id, echoed in the envelope and in the
// x-ticket response header.
func withTicket(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ticket := r.Header.Get("x-ticket")
		if ticket == "" {
			ticket = uuid.NewString()
		}
		w.Header().Set("x-ticket", ticket)
		ctx := context.WithValue(r.Context(), ticketKey, ticket)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth enforces the dual credential scheme: an application code plus a
// bearer token whose appCode claim matches it.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		appCode := auth.AppCode(r)
		if appCode == "" {
			h.resp.writeError(w, r, http.StatusUnauthorized, "application code is required")
			return
		}
		token := auth.BearerToken(r)
		if token == "" {
			h.resp.writeError(w, r, http.StatusUnauthorized, "access token is required")
			return
		}
		claims, err := h.validator.ValidateForApplication(token, appCode)
		if err != nil {
			h.resp.writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cors applies the configured origin allowlist.
func cors(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			for _, a := range allowed {
				if a == "*" || strings.EqualFold(a, origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, x-app-code, x-client-name, x-ticket")
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					break
				}
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
