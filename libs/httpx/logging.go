package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type recordingWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *recordingWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

type annotations struct {
	mu    sync.Mutex
	attrs []any
}

type annotationsKey struct{}

// Annotate attaches key/value pairs to the access log line of the request carried by ctx.
// Outside WithAccessLog it does nothing.
func Annotate(ctx context.Context, args ...any) {
	a, ok := ctx.Value(annotationsKey{}).(*annotations)
	if !ok {
		return
	}
	a.mu.Lock()
	a.attrs = append(a.attrs, args...)
	a.mu.Unlock()
}

// WithAccessLog logs one line per request; 5xx responses are logged at warn.
func WithAccessLog(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &recordingWriter{ResponseWriter: w}
			notes := &annotations{}
			ctx := context.WithValue(r.Context(), annotationsKey{}, notes)

			next.ServeHTTP(rw, r.WithContext(ctx))

			level := slog.LevelInfo
			if rw.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			notes.mu.Lock()
			attrs := append([]any{
				"request_id", RequestIDFromContext(ctx),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"bytes", rw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			}, notes.attrs...)
			notes.mu.Unlock()
			logger.Log(ctx, level, "http request", attrs...)
		})
	}
}
