package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"sync"
	"time"
)

const (
	csrfTokenLength = 32
	csrfCookieName  = "csrf_token"
	csrfHeaderName  = "X-CSRF-Token"
	csrfTokenTTL    = 24 * time.Hour
)

type csrfToken struct {
	value     string
	expiresAt time.Time
}

// CSRFStore keeps one token per cookie session in memory. Bearer-token
// requests never touch it.
type CSRFStore struct {
	mu     sync.RWMutex
	tokens map[string]csrfToken
}

func NewCSRFStore() *CSRFStore {
	s := &CSRFStore{tokens: make(map[string]csrfToken)}
	go s.evictExpired()
	return s
}

func (s *CSRFStore) evictExpired() {
	ticker := time.NewTicker(time.Hour)
	for range ticker.C {
		now := time.Now()
		s.mu.Lock()
		for session, tok := range s.tokens {
			if now.After(tok.expiresAt) {
				delete(s.tokens, session)
			}
		}
		s.mu.Unlock()
	}
}

// TokenFor returns the session's current token, minting one if needed.
func (s *CSRFStore) TokenFor(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok, ok := s.tokens[sessionID]; ok && time.Now().Before(tok.expiresAt) {
		return tok.value
	}

	raw := make([]byte, csrfTokenLength)
	if _, err := rand.Read(raw); err != nil {
		raw = []byte(time.Now().String())
	}
	value := base64.URLEncoding.EncodeToString(raw)

	s.tokens[sessionID] = csrfToken{
		value:     value,
		expiresAt: time.Now().Add(csrfTokenTTL),
	}
	return value
}

func (s *CSRFStore) validate(sessionID, provided string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[sessionID]
	if !ok || time.Now().After(tok.expiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(tok.value), []byte(provided)) == 1
}

// CSRF guards cookie-authenticated mutations. Requests carrying an
// Authorization header are exempt: a cross-site attacker cannot set one.
func CSRF(store *CSRFStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				issueCSRFCookie(w, r, store)
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get("Authorization") != "" {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := csrfSessionID(r)
			if sessionID == "" {
				http.Error(w, "Session required", http.StatusForbidden)
				return
			}

			provided := r.Header.Get(csrfHeaderName)
			if provided == "" || !store.validate(sessionID, provided) {
				http.Error(w, "Invalid CSRF token", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func issueCSRFCookie(w http.ResponseWriter, r *http.Request, store *CSRFStore) {
	sessionID := csrfSessionID(r)
	if sessionID == "" {
		return
	}
	if _, err := r.Cookie(csrfCookieName); err == nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    store.TokenFor(sessionID),
		Path:     "/",
		HttpOnly: false, // the frontend reads it back into the header
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(csrfTokenTTL.Seconds()),
	})
}

// csrfSessionID derives a session key from the auth cookie.
func csrfSessionID(r *http.Request) string {
	cookie, err := r.Cookie("token")
	if err != nil {
		return ""
	}
	if len(cookie.Value) > 16 {
		return cookie.Value[:16]
	}
	return cookie.Value
}
