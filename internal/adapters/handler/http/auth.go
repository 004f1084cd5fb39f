package http

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"omvstack.control/internal/core/logger"
)

const authenticatedKey = "authenticated"

type loginPage struct {
	Next  string
	Error string
}

// requireAuth gates the panels and the REST API when RPC_SECRET is set. A
// request passes with the rpc token header or with a session that signed in
// through /login.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.signedIn(r) {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodGet && !strings.HasPrefix(r.URL.Path, "/api/") {
			http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
			return
		}
		http.Error(w, "authentication required", http.StatusUnauthorized)
	})
}

func (s *Server) signedIn(r *http.Request) bool {
	return s.authorized(r) || s.sessions.GetBool(r.Context(), authenticatedKey)
}

func (s *Server) handleLoginGet(w http.ResponseWriter, r *http.Request) {
	if s.opts.RPCSecret == "" {
		http.Redirect(w, r, "/panels", http.StatusSeeOther)
		return
	}
	s.render(w, "login", loginPage{Next: safeNext(r.URL.Query().Get("next"))})
}

func (s *Server) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.PostFormValue("next"))
	if s.opts.RPCSecret == "" {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}

	token := r.PostFormValue("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.RPCSecret)) != 1 {
		logger.WarnContext(r.Context(), "Panel sign-in rejected", "remote", r.RemoteAddr)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		s.render(w, "login", loginPage{Next: next, Error: "Invalid token."})
		return
	}

	if err := s.sessions.RenewToken(r.Context()); err != nil {
		http.Error(w, "sign-in failed", http.StatusInternalServerError)
		return
	}
	s.sessions.Put(r.Context(), authenticatedKey, true)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Destroy(r.Context()); err != nil {
		logger.WarnContext(r.Context(), "Failed to destroy session", "error", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// safeNext keeps post-login redirects on this host.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/panels"
	}
	return next
}
