package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/bhoriuchi/graphql-ws-bridge/logger"
	"github.com/google/uuid"
)

// HeaderRequestID carries the request id
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the request id stored in ctx
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithRequestID stores a request id in ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Tracing assigns every request an id and logs it once the request ends
type Tracing struct {
	log *logger.LogWrapper
}

// NewTracing creates a new tracing middleware
func NewTracing(log *logger.LogWrapper) *Tracing {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Tracing{log: log}
}

// Handler returns the tracing middleware handler
func (m *Tracing) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(HeaderRequestID, id)
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(WithRequestID(r.Context(), id)))

		m.log.
			WithField("requestId", id).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", rw.statusCode).
			WithField("duration", time.Since(start).String()).
			Debugf("request completed")
	})
}
