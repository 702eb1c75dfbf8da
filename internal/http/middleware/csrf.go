package middleware

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	// CSRFCookieName is the double-submit cookie. It is deliberately not
	// HttpOnly: the browser client reads it back into the request header.
	CSRFCookieName = "csrf_token"

	// CSRFHeaderName is the header the client must echo the cookie into.
	CSRFHeaderName = "X-CSRF-Token"
)

// CSRF enforces the double-submit cookie pattern on state-changing methods.
// Safe methods pass through and get a token cookie when they lack one.
// Requests whose path starts with an exempt prefix skip the check entirely
// (webhooks and other non-browser callers).
func CSRF(exemptPrefixes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range exemptPrefixes {
				if prefix != "" && strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				ensureCSRFCookie(w, r)
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(CSRFCookieName)
			if err != nil || cookie.Value == "" {
				csrfReject(w)
				return
			}
			header := r.Header.Get(CSRFHeaderName)
			if header == "" || !tokensMatch(cookie.Value, header) {
				csrfReject(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// tokensMatch compares digests rather than raw values so the comparison is
// constant-time regardless of token length.
func tokensMatch(a, b string) bool {
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}

func ensureCSRFCookie(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(CSRFCookieName); err == nil && c.Value != "" {
		return
	}
	token := newCSRFToken()
	if token == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func newCSRFToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

func csrfReject(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"csrf token missing or invalid"}`))
}
