package iiif

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ContextKey is the context key to use.
type ContextKey string

// WithService sets the IIIF service used by the handlers.
func WithService(h http.Handler, service *Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = context.WithValue(ctx, ContextKey("service"), service)
		r = r.WithContext(ctx)
		h.ServeHTTP(w, r)
	})
}

func serviceFrom(r *http.Request) *Service {
	s, _ := r.Context().Value(ContextKey("service")).(*Service)
	return s
}

// statusRecorder keeps the status code sent.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// WithLogging logs every request with an id, reusing the X-Request-Id
// given by a proxy.
func WithLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		start := time.Now()
		rec := &statusRecorder{w, http.StatusOK}
		h.ServeHTTP(rec, r)

		zap.S().Infow("request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// WithMetrics counts the responses per status code.
func WithMetrics(h http.Handler, m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{w, http.StatusOK}
		h.ServeHTTP(rec, r)
		m.responses.WithLabelValues(strconv.Itoa(rec.status)).Inc()
	})
}
