// Package tick drives the periodic timekeeping every playing session
// depends on: a single ticker fans a TRIGGER_TICK out to each session's
// hosts channel, leaving the elected host responsible for actually
// invoking the controller (spec.md's host-driven tick design).
package tick

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lab1702/typingserver/events"
	"github.com/lab1702/typingserver/fanout"
	"github.com/lab1702/typingserver/metrics"
)

// SessionSource lists every session with a live controller, satisfied by
// *controller.Registry.
type SessionSource interface {
	SessionIDs() []uuid.UUID
	Len() int
}

// Broadcaster is run as a single long-lived goroutine from main, publishing
// a tick event to every known session's hosts channel on each interval.
type Broadcaster struct {
	bus      *fanout.Bus
	sessions SessionSource
	interval time.Duration
	logger   zerolog.Logger
}

// NewBroadcaster builds a ticker bound to sessions, publishing over bus
// every interval.
func NewBroadcaster(bus *fanout.Bus, sessions SessionSource, interval time.Duration, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{bus: bus, sessions: sessions, interval: interval, logger: logger.With().Str("component", "tick").Logger()}
}

// Run blocks, publishing on every tick until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("tick broadcaster stopping")
			return
		case <-ticker.C:
			b.broadcastOnce(ctx)
		}
	}
}

func (b *Broadcaster) broadcastOnce(ctx context.Context) {
	ids := b.sessions.SessionIDs()
	metrics.ActiveSessions.Set(float64(b.sessions.Len()))

	for _, id := range ids {
		out := events.Out{Target: events.TargetAll, Type: events.TriggerTick}
		if err := b.bus.Publish(ctx, id, fanout.GroupHosts, out); err != nil {
			b.logger.Warn().Err(err).Str("session_id", id.String()).Msg("failed to publish tick")
			continue
		}
		metrics.TicksBroadcast.Inc()
	}
}
