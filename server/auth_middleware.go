package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-habit-session/session"
)

// RequireSession guards routes that need a live session. The session is refreshed
// first when its access token is stale. Page requests without a session are sent
// to the login surface, API requests get a 401.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			switch s.sessions.Gate(r.Context()) {
			case session.Allow:
				next(w, r)
			case session.Wait:
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusServiceUnavailable, "authentication in progress")
			default:
				zerolog.Ctx(r.Context()).Debug().Str("path", r.URL.Path).Msg("no session, request denied")
				if wantsHTML(r) {
					http.Redirect(w, r, RouteLogin+"?from="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
					return
				}
				writeSession(w, http.StatusUnauthorized, s.sessions.State())
			}
		}
	}
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && r.Method == http.MethodGet
}
