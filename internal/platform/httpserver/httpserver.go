// Package httpserver builds the HTTP server with sane defaults for this
// project. Connection draining at shutdown is handled by internal/shutdown.
package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with defaults tuned for a public-facing gateway.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
