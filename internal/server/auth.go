package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"dash/internal/session"
)

type authPolicy int

const (
	// browserPolicy redirects unauthenticated requests to /login.
	browserPolicy authPolicy = iota
	// apiPolicy answers with a JSON 401 or 403.
	apiPolicy
)

// authRequired gates a route. With admin=false an authenticated session or
// a valid admin bearer token is enough; with admin=true only the bearer
// token counts.
func (s *Server) authRequired(admin bool, policy authPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !admin && s.loggedIn(r) {
				next.ServeHTTP(w, r)
				return
			}

			token, presented := bearerToken(r)
			if presented && s.adminTokenValid(r.Context(), token) {
				next.ServeHTTP(w, r)
				return
			}

			s.deny(w, r, policy, presented)
		})
	}
}

func (s *Server) deny(w http.ResponseWriter, r *http.Request, policy authPolicy, presented bool) {
	if policy == browserPolicy {
		target := "/login"
		if r.Method == http.MethodGet && r.URL.Path != "/logout" {
			target += "?next=" + url.QueryEscape(r.URL.RequestURI())
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	if presented {
		s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "authorization invalid"})
		return
	}
	s.respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "authorization missing"})
}

// loggedIn reports whether the request carries an authenticated session.
func (s *Server) loggedIn(r *http.Request) bool {
	sess, err := s.Sessions.Get(r, session.CookieName)
	if err != nil {
		s.Logger.Debug("Ignoring invalid session cookie", "error", err)
		return false
	}
	return session.LoggedIn(sess)
}

// adminTokenValid looks the token up in the store. Lookup errors count as
// invalid.
func (s *Server) adminTokenValid(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	ok, err := s.Store.AdminTokenExists(ctx, token)
	if err != nil {
		s.Logger.Error("Admin token lookup failed", "error", err)
		return false
	}
	return ok
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// presented is true whenever an Authorization header was sent, even when
// it is not a bearer credential.
func bearerToken(r *http.Request) (token string, presented bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(value), true
}
