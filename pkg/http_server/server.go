package http_server

import (
	"net/http"

	"github.com/jaennil/tileproxy/pkg/config"
)

// NewServer builds the HTTP server from config. Request logging lives in
// the gin middleware chain, not here.
func NewServer(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
