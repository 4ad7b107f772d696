package logging

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader is echoed back on every response and reused when a caller
// already supplies one.
const RequestIDHeader = "X-Request-Id"

// Middleware opens a logging scope for each HTTP request and writes one line
// when the request completes. Fields recorded with Track inside the handler
// are included on that line.
func Middleware(root Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(reqID); err != nil {
				reqID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, reqID)

			ctx := With(r.Context(), root.Named("http").With("http.request_id", reqID))
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if rec := recover(); rec != nil {
					Track(ctx, "error.panic", true)
					Track(ctx, "error.message", rec)
					sw.WriteHeader(http.StatusInternalServerError)
				}
				logger := withoutStacktrace(FromContext(ctx)).
					With("http.method", r.Method).
					With("http.path", r.URL.Path).
					With("http.status", sw.status).
					With("http.duration_ms", time.Since(start).Milliseconds())
				switch {
				case sw.status >= 500:
					logger.Error("finished call")
				case sw.status >= 400:
					logger.Warn("finished call")
				default:
					logger.Info("finished call")
				}
			}()

			next.ServeHTTP(sw, r.WithContext(ctx))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
