package fakeapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyClaims    ctxKey = "session_claims"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().
					Interface("panic", rec).
					Str("request_id", requestIDFromContext(r.Context())).
					Str("path", r.URL.Path).
					Msg("Recovered from panic")
				writeEnvelope(w, http.StatusInternalServerError, false, "Error interno del servidor", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	return r.ResponseWriter.Write(payload)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		s.logger.Debug().
			Str("request_id", requestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.statusCode).
			Dur("elapsed", time.Since(start)).
			Msg("Request served")
	})
}

// faultMiddleware counts calls per path and answers injected failures.
func (s *Server) faultMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := s.failureFor(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if f.status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", strconv.Itoa(60))
		}
		writeEnvelope(w, f.status, false, f.message, nil)
	})
}

// requireSession rejects requests without a valid, unrevoked cookie of
// the given kind with 401.
func (s *Server) requireSession(cookieName, kind string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := s.sessionFromRequest(r, cookieName, kind)
			if !ok {
				writeEnvelope(w, http.StatusUnauthorized, false, "No autenticado", nil)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) sessionFromRequest(r *http.Request, cookieName, kind string) (*sessionClaims, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	claims, err := s.tokens.parse(cookie.Value, kind)
	if err != nil {
		s.logger.Debug().Err(err).Str("cookie", cookieName).Msg("Rejected session cookie")
		return nil, false
	}
	if s.revoked.isRevoked(claims.ID) {
		return nil, false
	}
	return claims, true
}

func claimsFromContext(ctx context.Context) *sessionClaims {
	claims, _ := ctx.Value(ctxKeyClaims).(*sessionClaims)
	return claims
}
