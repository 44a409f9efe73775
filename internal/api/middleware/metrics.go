package middleware

import (
	"net/http"
	"sync/atomic"
)

// MetricsCollector counts requests, error responses and processed turns.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
	turnCount    *atomic.Int64
}

func NewMetricsCollector(requestCount, errorCount, turnCount *atomic.Int64) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
		turnCount:    turnCount,
	}
}

// Middleware counts every request and any 4xx or 5xx response.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			mc.errorCount.Add(1)
		}
	})
}

// CountTurns wraps the turn endpoint and counts successful turns.
func (mc *MetricsCollector) CountTurns(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)
		next(rw, r)
		if rw.statusCode == http.StatusOK {
			mc.turnCount.Add(1)
		}
	}
}
