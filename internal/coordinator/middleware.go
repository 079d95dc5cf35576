package coordinator

import (
	"context"
	"net/http"

	"github.com/crater-dist/crater/internal/auth"
	"github.com/crater-dist/crater/internal/wire"
)

// maxRequestBody caps a single request body (spec §7's payload-too-large
// error), chiefly the base64-encoded gzip log on record-progress.
const maxRequestBody = 16 * 1024 * 1024

type principalKey struct{}

// serverHeaderMiddleware stamps every response with "Server:
// crater/<git-rev>" (spec §6), grounded on the pack's
// SecurityHeadersMiddleware header-rewrite shape.
func (s *Server) serverHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverHeader)
		next.ServeHTTP(w, r)
	})
}

// limitBodyMiddleware caps request bodies at maxRequestBody via
// http.MaxBytesReader, rather than letting the JSON decoder hang on a
// multi-gigabyte body. A body over the cap makes the handler's decode fail,
// which the handler answers with HTTP 400 and an "internal-error" envelope;
// there is no separate payload-too-large envelope.
func limitBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the Authorization header to a principal and
// stores it in the request context, or short-circuits with the
// "unauthorized" envelope (spec §6/§7) when the token is unknown or does
// not belong to an agent-kind principal.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.ExtractToken(r.Header.Get("Authorization"))
		if !ok {
			writeEnvelope(w, http.StatusUnauthorized, wire.Unauthorized())
			return
		}
		principal, err := s.tokens.Resolve(token)
		if err != nil || principal.Kind != auth.KindAgent {
			writeEnvelope(w, http.StatusUnauthorized, wire.Unauthorized())
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFromContext(r *http.Request) (auth.Principal, bool) {
	p, ok := r.Context().Value(principalKey{}).(auth.Principal)
	return p, ok
}
