package session

import (
	"github.com/gorilla/sessions"

	"dash/internal/oauth"
)

const (
	keyAccessToken = "access_token"
	keyLoggedIn    = "logged_in"
	keyUser        = "user"
)

// LoggedIn reports whether the session completed the OAuth flow.
func LoggedIn(s *sessions.Session) bool {
	v, _ := s.Values[keyLoggedIn].(bool)
	return v
}

// User returns the profile stored at login, or nil.
func User(s *sessions.Session) oauth.Profile {
	p, _ := s.Values[keyUser].(oauth.Profile)
	return p
}

// AccessToken returns the provider access token stored at login.
func AccessToken(s *sessions.Session) string {
	v, _ := s.Values[keyAccessToken].(string)
	return v
}

// SetAuthenticated moves the session into the authenticated state.
func SetAuthenticated(s *sessions.Session, accessToken string, user oauth.Profile) {
	s.Values[keyAccessToken] = accessToken
	s.Values[keyLoggedIn] = true
	s.Values[keyUser] = user
}

// Clear returns the session to the anonymous state. The session itself
// stays valid so the cookie keeps working.
func Clear(s *sessions.Session) {
	delete(s.Values, keyAccessToken)
	delete(s.Values, keyUser)
	s.Values[keyLoggedIn] = false
}
