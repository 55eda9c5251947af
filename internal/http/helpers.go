package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// ClientCookieName identifies the browser across reloads so its stored
	// filter preferences and session survive.
	ClientCookieName = "reports_client"

	clientCookieMaxAge = 365 * 24 * time.Hour
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// clientID returns the id carried by the client cookie, issuing a fresh one
// when the cookie is missing or malformed.
func clientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(ClientCookieName); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(clientCookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// existingClientID returns the cookie's id without issuing one.
func existingClientID(r *http.Request) (string, bool) {
	c, err := r.Cookie(ClientCookieName)
	if err != nil {
		return "", false
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
