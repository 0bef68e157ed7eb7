// Package httpserver constructs the process's single HTTP server.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the server carrying the authentication surface. Header reads are
// bounded so idle clients cannot pin connections; full-request and write
// deadlines stay generous because the slowest handler path is a bcrypt
// comparison on login.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
