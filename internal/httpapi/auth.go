package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAPIKey rejects requests whose bearer token is not one of the
// configured API keys.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	keys := make([][]byte, 0, len(s.cfg.APIKeys))
	for _, k := range s.cfg.APIKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			s.unauthorized(w, "missing bearer token")
			return
		}
		if !validKey(keys, []byte(token)) {
			s.log.WarnContext(r.Context(), "Rejected request with unknown API key", "remote", r.RemoteAddr)
			s.unauthorized(w, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validKey compares against every key so timing does not depend on which one matched.
func validKey(keys [][]byte, token []byte) bool {
	ok := 0
	for _, k := range keys {
		ok |= subtle.ConstantTimeCompare(k, token)
	}
	return ok == 1
}

func bearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="gps"`)
	s.writeError(w, http.StatusUnauthorized, msg)
}
