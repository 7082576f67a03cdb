package api

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chrlesur/live-memory/pkg/auth"
)

// publicPaths are served without authentication.
var publicPaths = map[string]bool{
	"/health":      true,
	"/ready":       true,
	"/metrics":     true,
	"/favicon.ico": true,
}

// withAuth resolves the bearer token on every protected route and attaches
// the identity to the request context. Requests without a valid token stop
// at the boundary with a 401.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := s.tokens.Authenticate(r.Context(), extractToken(r))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				s.logger.Warn().Err(err).Msg("Token lookup failed")
			}
			s.logger.Debug().Str("path", r.URL.Path).Str("client", clientAddr(r)).Msg("Rejected unauthenticated request")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": auth.ErrUnauthorized.Error()})
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

// extractToken pulls the bearer token from the Authorization header, with
// a query fallback for SSE clients that cannot set headers.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// withLogging emits one access log line per request, health checks
// excepted. For /sse the line fires when the stream ends, so the duration
// is the session lifetime.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Str("client", clientAddr(r)).
			Msg("HTTP request")
	})
}

// statusRecorder captures the response code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so SSE streaming keeps working
// behind the access log.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

var _ http.Flusher = (*statusRecorder)(nil)

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
