package server

import (
	"net/http"

	"dash/internal/session"
	"dash/internal/web"
)

// page renders one of the embedded dashboard pages.
func (s *Server) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := web.PageData{BotName: s.Config.BotName}

		if sess, err := s.Sessions.Get(r, session.CookieName); err == nil && session.LoggedIn(sess) {
			data.LoggedIn = true
			data.User = session.User(sess).Username()
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := s.Pages.Render(w, name, data); err != nil {
			s.Logger.Error("Failed to render page", "page", name, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}
