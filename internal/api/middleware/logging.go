package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const logFieldsKey = contextKey("log_fields")

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

type logFields struct {
	mu     sync.Mutex
	fields []zap.Field
}

// AddLogFields attaches fields to the request log line written by Logging.
// It does nothing outside a Logging-wrapped request.
func AddLogFields(ctx context.Context, fields ...zap.Field) {
	lf, ok := ctx.Value(logFieldsKey).(*logFields)
	if !ok {
		return
	}
	lf.mu.Lock()
	lf.fields = append(lf.fields, fields...)
	lf.mu.Unlock()
}

// Logging returns middleware that logs each request with structured JSON output.
// Server errors are logged at error level.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Handlers annotate the line through the request context
			lf := &logFields{}
			r = r.WithContext(context.WithValue(r.Context(), logFieldsKey, lf))
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			requestID := RequestIDFromContext(r.Context())

			level := zapcore.InfoLevel
			if rw.statusCode >= http.StatusInternalServerError {
				level = zapcore.ErrorLevel
			}

			// Route params are only known once chi has matched the request
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", routePattern(r)),
				zap.String("query", r.URL.RawQuery),
				zap.Int("status", rw.statusCode),
				zap.Int64("bytes", rw.written),
				zap.Duration("duration", duration),
				zap.String("request_id", requestID),
				zap.String("session_id", chi.URLParam(r, "id")),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
			}
			lf.mu.Lock()
			fields = append(fields, lf.fields...)
			lf.mu.Unlock()

			if ce := logger.Check(level, "http request"); ce != nil {
				ce.Write(fields...)
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
