package timer

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultReaperInterval = time.Hour
	DefaultGroupRetention = 24 * time.Hour
)

// ReaperConfig holds the sweep schedule.
type ReaperConfig struct {
	Interval  time.Duration
	Retention time.Duration
	Clock     Clock
}

// Reaper periodically evicts groups that have not changed within the
// retention window.
type Reaper struct {
	registry *Registry
	config   ReaperConfig
}

// NewReaper creates a reaper for registry.
func NewReaper(registry *Registry, config ReaperConfig) *Reaper {
	if config.Interval <= 0 {
		config.Interval = DefaultReaperInterval
	}
	if config.Retention <= 0 {
		config.Retention = DefaultGroupRetention
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &Reaper{registry: registry, config: config}
}

// Run sweeps on every tick until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", r.config.Interval).
		Dur("retention", r.config.Retention).
		Msg("reaper started")

	ticker := r.config.Clock.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reaper shutting down")
			return nil
		case <-ticker.Chan():
			r.SweepOnce()
		}
	}
}

// SweepOnce evicts inactive groups immediately and returns their ids.
func (r *Reaper) SweepOnce() []string {
	cutoff := r.config.Clock.Now().Add(-r.config.Retention)
	evicted := r.registry.Sweep(cutoff)

	log.Info().
		Int("evicted", len(evicted)).
		Int("remaining", r.registry.Len()).
		Msg("reaper sweep finished")
	for _, id := range evicted {
		log.Debug().Str("group_id", id).Msg("group evicted")
	}
	return evicted
}
