package observability

import (
	"net/http"
	"time"
)

// HealthFunc reports whether the process is healthy.
type HealthFunc func() error

// NewServer returns an HTTP server exposing /metrics and /health.
// A nil health func always reports ok.
func NewServer(addr string, health HealthFunc) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
