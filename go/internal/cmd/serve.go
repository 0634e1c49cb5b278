package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/raidtimer/go/internal/config"
)

var (
	servePort            string
	serveLongPollTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the timer sync server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides PORT)")
	serveCmd.Flags().DurationVar(&serveLongPollTimeout, "longpoll-timeout", 0, "how long a status request may wait for a change")
	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags lays serve's flags over the loaded config. It is a no-op for
// other commands.
func applyServeFlags(cmd *cobra.Command, c *config.Config) error {
	if cmd != serveCmd {
		return nil
	}
	if cmd.Flags().Changed("port") {
		c.Port = servePort
	}
	if cmd.Flags().Changed("longpoll-timeout") {
		c.LongPollTimeout = serveLongPollTimeout
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	services, err := setupServices(cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	server := setupServer(cfg, services)

	go func() {
		if err := services.Reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("reaper stopped")
		}
	}()
	go func() {
		if err := services.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Dur("longpoll_timeout", cfg.LongPollTimeout).
			Dur("reaper_interval", cfg.ReaperInterval).
			Dur("group_retention", cfg.GroupRetention).
			Msg("starting raidtimer server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
