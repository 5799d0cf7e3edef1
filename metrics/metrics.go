// Package metrics exposes the node's Prometheus instrumentation: counters
// and gauges for tournament lifecycle events, plus an HTTP handler callers
// wire into their own mux.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TournamentsCreated counts tournament_create transactions that executed
	// successfully.
	TournamentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tolchain_tournaments_created_total",
		Help: "Total number of tournaments created.",
	})

	// TournamentsConcluded counts tournaments that reached the concluded state.
	TournamentsConcluded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tolchain_tournaments_concluded_total",
		Help: "Total number of tournaments that concluded with a payout.",
	})

	// TournamentsExpired counts tournaments whose registration period expired
	// without filling.
	TournamentsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tolchain_tournaments_expired_total",
		Help: "Total number of tournaments whose registration period expired.",
	})

	// TournamentPlayersRegistered is the net count of currently-registered
	// tournament players across all open tournaments (incremented on join,
	// decremented on leave).
	TournamentPlayersRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tolchain_tournament_players_registered",
		Help: "Current number of registered tournament players across all tournaments.",
	})

	// TournamentPrizePoolLocked tracks total tokens currently locked in open
	// tournament prize pools.
	TournamentPrizePoolLocked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tolchain_tournament_prize_pool_locked",
		Help: "Total tokens currently locked in tournament prize pools.",
	})
)

// Handler returns the HTTP handler that serves /metrics in the Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
