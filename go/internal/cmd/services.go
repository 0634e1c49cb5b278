package main

import (
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raidtimer/go/internal/config"
	"github.com/mcdev12/raidtimer/go/internal/events"
	"github.com/mcdev12/raidtimer/go/internal/gateway"
	"github.com/mcdev12/raidtimer/go/internal/timer"
)

type Services struct {
	Registry *timer.Registry
	Reaper   *timer.Reaper
	Gateway  *gateway.Service

	nats *nats.Conn
}

func setupServices(cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Publisher → Registry → Reaper / Gateway
	var publisher events.Publisher = events.LogPublisher{}
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		natsConfig := events.DefaultNATSConfig()
		natsConfig.URL = cfg.NATS.URL
		natsConfig.SubjectPrefix = cfg.NATS.SubjectPrefix

		var err error
		nc, err = events.ConnectNATS(natsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to set up change events: %w", err)
		}
		publisher = events.NewNATSPublisher(nc, natsConfig.SubjectPrefix)
		log.Info().Str("url", nc.ConnectedUrl()).Str("subject_prefix", natsConfig.SubjectPrefix).Msg("publishing group changes to NATS")
	}

	clock := clockwork.NewRealClock()
	metrics := events.NewCountingMetrics()
	registry := timer.NewRegistry(timer.RegistryConfig{
		Clock:    clock,
		Listener: events.NewNotifier(events.NewMetricPublisher(publisher, metrics), 0, clock),
	})

	reaper := timer.NewReaper(registry, timer.ReaperConfig{
		Interval:  cfg.ReaperInterval,
		Retention: cfg.GroupRetention,
		Clock:     clock,
	})

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.LongPollTimeout = cfg.LongPollTimeout
	gatewayConfig.Clock = clock
	gatewayConfig.ConnectionConfig.ResubscribeInterval = cfg.LongPollTimeout
	gatewayConfig.PublishStats = metrics.Snapshot
	if nc != nil {
		gatewayConfig.HealthCheck = func() error {
			if !nc.IsConnected() {
				return errors.New("NATS not connected: " + nc.Status().String())
			}
			return nil
		}
	}

	return &Services{
		Registry: registry,
		Reaper:   reaper,
		Gateway:  gateway.NewService(gatewayConfig, registry),
		nats:     nc,
	}, nil
}

// Close releases external connections.
func (s *Services) Close() {
	if s.nats != nil {
		if err := s.nats.Drain(); err != nil {
			log.Warn().Err(err).Msg("failed to drain NATS connection")
		}
	}
}
