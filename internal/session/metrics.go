package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts session events. One set is shared by every session of a
// process.
type Metrics struct {
	Clicks        prometheus.Counter
	Analyses      *prometheus.CounterVec
	StaleDiscards prometheus.Counter
	Renders       *prometheus.CounterVec
	Active        prometheus.Gauge
}

// NewMetrics registers the session metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Clicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mapmind",
			Subsystem: "session",
			Name:      "clicks_total",
			Help:      "Map clicks accepted as pin placements",
		}),
		Analyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapmind",
			Subsystem: "session",
			Name:      "analyses_total",
			Help:      "Analysis results applied, by outcome",
		}, []string{"outcome"}),
		StaleDiscards: f.NewCounter(prometheus.CounterOpts{
			Namespace: "mapmind",
			Subsystem: "session",
			Name:      "stale_discards_total",
			Help:      "Analysis results dropped because a newer request superseded them",
		}),
		Renders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapmind",
			Subsystem: "session",
			Name:      "reconciles_total",
			Help:      "Mode reconciliations, by outcome",
		}, []string{"outcome"}),
		Active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "mapmind",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently held by the registry",
		}),
	}
}
