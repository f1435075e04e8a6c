// Package metrics holds the Prometheus collectors shared by the tick
// source and the connection endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksBroadcast counts every session.tick published to a session's
	// hosts channel, for capacity planning against the tick interval.
	TicksBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "typingserver_ticks_broadcast_total",
		Help: "Total number of session ticks broadcast to host channels",
	})

	// ActiveSessions tracks the registry's live controller count.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "typingserver_active_sessions",
		Help: "Current number of sessions with a live controller",
	})

	// ConnectedPlayers tracks the number of open player websocket
	// connections across all sessions.
	ConnectedPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "typingserver_connected_players",
		Help: "Current number of open player websocket connections",
	})

	// PlayerEventsTotal counts dispatched player events by type, for
	// traffic analysis.
	PlayerEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typingserver_player_events_total",
		Help: "Distribution of player event types dispatched to controllers",
	}, []string{"event_type"})

	// GamesFinishedTotal is a per-mode counter of games that reached the
	// voting stage. It is registered with the default registry, but nothing
	// in this module increments it, so every series stays at zero.
	GamesFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typingserver_games_finished_total",
		Help: "Total number of games that reached the voting stage, by mode",
	}, []string{"mode"})
)
