package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"badgehub/internal/contextutils"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

const (
	HeaderXRequestID     = "X-Request-ID"
	HeaderXCorrelationID = "X-Correlation-ID"
)

// RequestID tags each request with an id, echoed in X-Request-ID, and
// stores a logger carrying it in the request context.
func RequestID(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := incomingRequestID(r)
			if id == "" {
				id = newRequestID(start)
			}
			w.Header().Set(HeaderXRequestID, id)

			reqLogger := logger.With(
				zap.String("request_id", id),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", getClientIP(r)),
			)
			reqLogger.Debug("Request started", zap.String("query", r.URL.RawQuery))

			ctx := contextutils.WithRequestStart(
				contextutils.WithLogger(contextutils.WithRequestID(r.Context(), id), reqLogger),
				start,
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func incomingRequestID(r *http.Request) string {
	for _, h := range []string{HeaderXRequestID, HeaderXCorrelationID} {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	return ""
}

func newRequestID(at time.Time) string {
	id, err := uuid.NewV4()
	if err != nil {
		return "req-" + strconv.FormatInt(at.UnixNano(), 36)
	}
	return id.String()
}

// getClientIP prefers the first hop of X-Forwarded-For, then X-Real-IP.
func getClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
