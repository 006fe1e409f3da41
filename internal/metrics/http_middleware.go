package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// statusRecorder keeps the status and body size. Stream responses go
// through it, so it forwards Flush and exposes the wrapped writer for
// http.ResponseController.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func skipHTTPMetrics(path string) bool {
	return path == "/metrics" || strings.HasPrefix(path, "/health")
}

// HTTPMetricsMiddleware records request counts, latency and response
// size with job ids collapsed out of the path label.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skipHTTPMetrics(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		inFlight := HTTPRequestsInFlight.WithLabelValues(r.Method)
		inFlight.Inc()
		defer inFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		path := NormalizePath(r.URL.Path)
		status := strconv.Itoa(rec.status)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		HTTPResponseSize.WithLabelValues(r.Method, path, status).Observe(float64(rec.bytes))
	})
}
