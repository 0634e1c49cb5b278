package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raidtimer/go/internal/events"
	"github.com/mcdev12/raidtimer/go/internal/timer"
)

// DefaultLongPollTimeout is how long a status request may wait for a change.
const DefaultLongPollTimeout = 55 * time.Second

// Service is the HTTP face of the group registry: plain requests, long-poll
// and WebSocket push.
type Service struct {
	registry          *timer.Registry
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	publishStats      func() events.PublishStats
	healthCheck       func() error
}

// Config holds configuration for the gateway service
type Config struct {
	LongPollTimeout  time.Duration
	ConnectionConfig ConnectionConfig
	Clock            clockwork.Clock

	// PublishStats, when set, adds change event counters to /stats.
	PublishStats func() events.PublishStats
	// HealthCheck, when set, turns /health into 503 on error.
	HealthCheck func() error
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		LongPollTimeout:  DefaultLongPollTimeout,
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// Stats is served on /stats.
type Stats struct {
	Groups      int                  `json:"groups"`
	Connections ConnectionStats      `json:"websocket"`
	Events      *events.PublishStats `json:"events,omitempty"`
}

// NewService creates a new gateway service
func NewService(config Config, registry *timer.Registry) *Service {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if config.LongPollTimeout <= 0 {
		config.LongPollTimeout = DefaultLongPollTimeout
	}
	if config.ConnectionConfig.ResubscribeInterval <= 0 {
		config.ConnectionConfig.ResubscribeInterval = config.LongPollTimeout
	}

	connectionManager := NewConnectionManager(registry, config.ConnectionConfig, config.Clock)

	return &Service{
		registry:          registry,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(registry, config.LongPollTimeout, config.Clock),
		publishStats:      config.PublishStats,
		healthCheck:       config.HealthCheck,
	}
}

// Start blocks until ctx is done, then closes open WebSocket connections.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting gateway service")
	<-ctx.Done()
	log.Info().Msg("gateway service shutting down")
	return s.Stop()
}

// Stop closes every WebSocket connection.
func (s *Service) Stop() error {
	s.connectionManager.CloseAll()
	log.Info().Msg("gateway service stopped")
	return nil
}

// RegisterRoutes registers every gateway route
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.stateHandler.RegisterStateRoutes(mux)
	s.wsHandler.RegisterRoutes(mux)
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.HandleFunc("GET /stats", s.HandleStats)
	log.Info().Msg("gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() Stats {
	stats := Stats{
		Groups:      s.registry.Len(),
		Connections: s.connectionManager.GetConnectionStats(),
	}
	if s.publishStats != nil {
		published := s.publishStats()
		stats.Events = &published
	}
	return stats
}

// HandleHealth handles GET /health
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if s.healthCheck != nil {
		if err := s.healthCheck(); err != nil {
			log.Warn().Err(err).Msg("health check failed")
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// HandleStats handles GET /stats
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.GetStats())
}

// Handler returns the full middleware chain around the routes.
func (s *Service) Handler(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return RequestLogger(NewCORS(allowedOrigins).Handler(mux))
}
