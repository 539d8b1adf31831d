package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/liamcoop/irrigation/internal/logger"
	"github.com/liamcoop/irrigation/metrics"
)

// slowRequest is the latency above which a request is logged as slow
const slowRequest = time.Second

// requestID keeps an incoming X-Request-Id or assigns a UUID, and stores it
// where middleware.GetReqID finds it
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs every request through the service logger and records
// it in the metrics by route pattern. The HTTP helpers already count the
// outcome, so the plain slog logger is used for output.
func requestLogger(rec *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			rec.Request(route, status, elapsed)

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed.String(),
				"requestId", middleware.GetReqID(r.Context()),
				"remote", r.RemoteAddr,
			}

			switch {
			case status >= 500:
				logger.ErrorHttp5xx()
				logger.Logger.Error("request failed", args...)
			case status >= 400:
				logger.WarnHttp4xx(status)
				logger.Logger.Warn("request rejected", args...)
			default:
				logger.Debug("request", args...)
			}

			if elapsed > slowRequest {
				logger.WarnSlowRequest()
				logger.Logger.Warn("slow request", args...)
			}
		})
	}
}
