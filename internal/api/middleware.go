package api

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// maxRequestBodySize caps request bodies; library imports are the largest.
const maxRequestBodySize = 1 << 20

// Default CORS lists, used when the config leaves them empty.
const (
	defaultCORSMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	defaultCORSHeaders = "Content-Type, X-Request-ID"
)

type ctxKey int

const ctxKeyRequest ctxKey = iota

// requestTag identifies a request in logs: its ID and the vessel the
// server drives.
type requestTag struct {
	ID       string
	VesselID string
}

// tagFrom returns the tag stored by requestIDMiddleware.
func tagFrom(ctx context.Context) requestTag {
	tag, _ := ctx.Value(ctxKeyRequest).(requestTag)
	return tag
}

// requestIDMiddleware tags each request with an ID (the client's
// X-Request-ID or a new UUID) and this server's vessel, and echoes both
// as response headers.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag := requestTag{ID: r.Header.Get("X-Request-ID"), VesselID: s.engine.VesselID()}
		if tag.ID == "" {
			tag.ID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", tag.ID)
		w.Header().Set("X-Vessel-ID", tag.VesselID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequest, tag)))
	})
}

// loggingMiddleware logs each request once it has been served.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		tag := tagFrom(r.Context())
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", routePattern(r),
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", tag.ID,
			"vessel_id", tag.VesselID,
		)
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// recoveryMiddleware turns a handler panic into a 500 response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			tag := tagFrom(r.Context())
			s.logger.Error("panic recovered in HTTP handler",
				"error", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", tag.ID,
				"vessel_id", tag.VesselID,
			)
			writeInternalError(w, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware sets CORS headers for allowed origins and answers
// preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	methods := defaultCORSMethods
	if len(s.cfg.CORS.AllowedMethods) > 0 {
		methods = strings.Join(s.cfg.CORS.AllowedMethods, ", ")
	}
	headers := defaultCORSHeaders
	if len(s.cfg.CORS.AllowedHeaders) > 0 {
		headers = strings.Join(s.cfg.CORS.AllowedHeaders, ", ")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Vessel-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin reports whether origin may call the API. An empty list
// allows every origin.
func (s *Server) isAllowedOrigin(origin string) bool {
	allowed := s.cfg.CORS.AllowedOrigins
	return len(allowed) == 0 || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}
