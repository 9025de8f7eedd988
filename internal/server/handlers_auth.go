package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"dash/internal/security"
	"dash/internal/session"
)

const (
	stateCookie = "oauth_state"
	nextCookie  = "oauth_next"
	stateTTL    = 10 * time.Minute

	landingPath = "/dashboard"
)

// HandleLogin redirects to the provider's authorization page. The server
// session is left untouched; only a short-lived state cookie is set.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := security.GenerateToken()
	if err != nil {
		s.Logger.Error("Failed to generate OAuth state", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.setFlowCookie(w, stateCookie, state, int(stateTTL.Seconds()))

	if next := r.URL.Query().Get("next"); next != "" && security.SafeRedirectPath(next) {
		s.setFlowCookie(w, nextCookie, next, int(stateTTL.Seconds()))
	}

	http.Redirect(w, r, s.OAuth.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback completes the authorization-code exchange.
func (s *Server) HandleCallback(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Get(r, session.CookieName)
	if err != nil {
		// sess is a fresh anonymous session in this case.
		s.Logger.Debug("Replacing invalid session cookie", "error", err)
	}

	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		s.loginFailed(w, r, sess, "provider returned an error", "error", providerErr)
		return
	}

	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" ||
		subtle.ConstantTimeCompare([]byte(state.Value), []byte(query.Get("state"))) != 1 {
		s.loginFailed(w, r, sess, "state mismatch")
		return
	}

	token, err := s.OAuth.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		s.loginFailed(w, r, sess, "token exchange failed", "error", err)
		return
	}

	profile, err := s.OAuth.FetchProfile(r.Context(), token)
	if err != nil {
		s.loginFailed(w, r, sess, "profile fetch failed", "error", err)
		return
	}

	// Issue a new session id on login.
	if err := s.Sessions.Rotate(sess); err != nil {
		s.Logger.Error("Failed to rotate session", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	session.SetAuthenticated(sess, token.AccessToken, profile)
	if err := sess.Save(r, w); err != nil {
		s.Logger.Error("Failed to save session", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	target := landingPath
	if next, err := r.Cookie(nextCookie); err == nil && security.SafeRedirectPath(next.Value) {
		target = next.Value
	}
	s.clearFlowCookies(w)

	id, _ := profile.ID()
	s.Logger.Info("User logged in", "user_id", id)

	http.Redirect(w, r, target, http.StatusFound)
}

// HandleLogout returns the session to the anonymous state.
func (s *Server) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Get(r, session.CookieName)
	if err == nil {
		session.Clear(sess)
		if err := sess.Save(r, w); err != nil {
			s.Logger.Error("Failed to save session", "error", err)
		}
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// loginFailed is the recoverable failure path: the session is cleared and
// the browser sent back to /login.
func (s *Server) loginFailed(w http.ResponseWriter, r *http.Request, sess *sessions.Session, reason string, args ...any) {
	s.Logger.Warn("Login failed", append([]any{"reason", reason}, args...)...)

	session.Clear(sess)
	if err := sess.Save(r, w); err != nil {
		s.Logger.Error("Failed to save session", "error", err)
	}
	s.clearFlowCookies(w)

	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) setFlowCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.Config.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearFlowCookies(w http.ResponseWriter) {
	s.setFlowCookie(w, stateCookie, "", -1)
	s.setFlowCookie(w, nextCookie, "", -1)
}
