package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// sessionCookie is the dashboard session cookie name.
const sessionCookie = "chatlens_session"

// sessionTTL bounds how long a login lasts.
const sessionTTL = 24 * time.Hour

// checkPassword verifies the submitted dashboard password. The
// hashed variant takes precedence; the plain variant compares in
// constant time.
func (s *Server) checkPassword(candidate string) bool {
	if h := s.cfg.DashboardPasswordHash; h != "" {
		return bcrypt.CompareHashAndPassword([]byte(h), []byte(candidate)) == nil
	}
	want := []byte(s.cfg.DashboardPassword)
	got := []byte(candidate)
	return subtle.ConstantTimeCompare(want, got) == 1
}

// issueSession mints a signed session token.
func (s *Server) issueSession(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "dashboard",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.SessionSecret))
}

// verifySession validates a session token's signature and
// expiry.
func (s *Server) verifySession(raw string) error {
	_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("unexpected signing method %v", t.Method.Alg())
			}
			return []byte(s.cfg.SessionSecret), nil
		},
		jwt.WithExpirationRequired(),
	)
	return err
}

// requireAuth rejects unauthenticated requests. A deployment
// with no dashboard password runs open.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	if !s.cfg.AuthEnabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil || s.verifySession(c.Value) != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AuthEnabled() {
		writeError(w, http.StatusBadRequest, "authentication is not configured")
		return
	}
	if !s.loginLimiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}
	if !s.checkPassword(req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, err := s.issueSession(time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("signing session token")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AuthEnabled() {
		writeJSON(w, http.StatusOK, map[string]bool{"authenticated": true})
		return
	}
	c, err := r.Cookie(sessionCookie)
	ok := err == nil && s.verifySession(c.Value) == nil
	status := http.StatusOK
	if !ok {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, map[string]bool{"authenticated": ok})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
}
