package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/position-monitor/internal/model"
)

const namespace = "position_monitor"

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	UpdatesApplied    prometheus.Counter
	UpdatesUnchanged  prometheus.Counter
	UpdatesRejected   *prometheus.CounterVec // label: reason
	Inserts           prometheus.Counter
	InsertsRejected   *prometheus.CounterVec // label: reason
	HighlightsExpired prometheus.Counter
	MarkersExpired    prometheus.Counter
	ActiveHighlights  prometheus.Gauge
	ActiveMarkers     prometheus.Gauge
	Records           prometheus.Gauge
	EventsDropped     prometheus.Counter
}

// New creates collectors and registers them with reg. A nil reg creates
// unregistered collectors, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		UpdatesApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_applied_total",
			Help:      "Field updates committed to the record store.",
		}),
		UpdatesUnchanged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_unchanged_total",
			Help:      "Committed field updates that did not change the value.",
		}),
		UpdatesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_rejected_total",
			Help:      "Field updates rejected, by reason.",
		}, []string{"reason"}),
		Inserts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inserts_total",
			Help:      "Records inserted.",
		}),
		InsertsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inserts_rejected_total",
			Help:      "Record inserts rejected, by reason.",
		}, []string{"reason"}),
		HighlightsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "highlights_expired_total",
			Help:      "Field highlights removed by expiry.",
		}),
		MarkersExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insertion_markers_expired_total",
			Help:      "Insertion markers removed by expiry.",
		}),
		ActiveHighlights: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_highlights",
			Help:      "Field highlights currently displayed.",
		}),
		ActiveMarkers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_insertion_markers",
			Help:      "Insertion markers currently displayed.",
		}),
		Records: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records in the store.",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_notifications_dropped_total",
			Help:      "Change notifications dropped because the subscriber channel was full.",
		}),
	}
}

// Reason maps a write path error to a low-cardinality label value.
func Reason(err error) string {
	switch {
	case errors.Is(err, model.ErrUnknownRecord):
		return "unknown_record"
	case errors.Is(err, model.ErrInvalidField):
		return "invalid_field"
	case errors.Is(err, model.ErrDuplicateID):
		return "duplicate_id"
	case errors.Is(err, model.ErrInvalidValue):
		return "invalid_value"
	default:
		return "other"
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
