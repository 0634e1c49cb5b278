package main

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/raidtimer/go/internal/config"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	handler := services.Gateway.Handler(cfg.CORS.AllowedOrigins)

	// Setup HTTP/2 cleartext server. Long-polls hold the response for up to
	// LongPollTimeout, so the write deadline has to outlast it.
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.LongPollTimeout + 15*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
