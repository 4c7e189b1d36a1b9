package api

import (
	"net/http"
	"net/url"

	"github.io/razzkumar/maildev/internal/gate"
)

// filterValues returns where the default filter is kept for this browser.
// The session view is a nil interface when sessions are disabled.
func (s *Server) filterValues(w http.ResponseWriter, r *http.Request) (gate.Values, gate.Values) {
	cookies := gate.NewCookies(w, r, gate.CookieMaxAge)
	if s.sessions == nil {
		return nil, cookies
	}
	return s.sessions.Load(w, r), cookies
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid form")
		return
	}
	from := r.PostFormValue("email")
	session, cookies := s.filterValues(w, r)
	gate.Remember(session, cookies, from)
	s.logger.Info("filter set", "from", from)
	http.Redirect(w, r, s.rootPath()+"?"+gate.FilterKey+"="+url.QueryEscape(from), http.StatusFound)
}

func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	session, cookies := s.filterValues(w, r)
	gate.Forget(session, cookies)
	s.logger.Info("filter cleared")
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
