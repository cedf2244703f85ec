// Package metrics exposes Prometheus collectors for gate decisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DecisionsTotal counts gate decisions by flow and outcome code.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gate",
			Subsystem: "engine",
			Name:      "decisions_total",
			Help:      "Gate decisions by flow and outcome",
		},
		[]string{"flow", "outcome"},
	)

	// TicketVerificationsTotal counts ticket verification outcomes.
	TicketVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gate",
			Subsystem: "guard",
			Name:      "ticket_verifications_total",
			Help:      "Ticket verification outcomes (accepted, wrong, locked)",
		},
		[]string{"outcome"},
	)

	// SecondFactorTotal counts resident second factor outcomes.
	SecondFactorTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gate",
			Subsystem: "authenticator",
			Name:      "second_factor_total",
			Help:      "Resident second factor outcomes by method",
		},
		[]string{"method", "outcome"},
	)

	// LockoutsTotal counts station lock engagements.
	LockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gate",
			Subsystem: "station",
			Name:      "lockouts_total",
			Help:      "Number of times the station lock was engaged",
		},
	)

	// StationLocked is 1 while the station lock is engaged.
	StationLocked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gate",
			Subsystem: "station",
			Name:      "locked",
			Help:      "1 while the station lock is engaged",
		},
	)

	// RecognitionDuration measures calls to the external recognition service.
	RecognitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gate",
			Subsystem: "recognition",
			Name:      "request_duration_seconds",
			Help:      "Duration of recognition service calls",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"operation"},
	)

	// AlertsTotal counts alerts by severity and delivery result.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gate",
			Subsystem: "alerts",
			Name:      "total",
			Help:      "Operator alerts by severity and result (queued, dropped, delivered, failed)",
		},
		[]string{"severity", "result"},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetStationLocked mirrors the station lock state into the gauge.
func SetStationLocked(locked bool) {
	if locked {
		StationLocked.Set(1)
		return
	}
	StationLocked.Set(0)
}
