// Package metrics exposes the tracker's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles every tracker metric on its own registry so tests can
// create collectors without fighting the global default registry.
type Collector struct {
	reg *prometheus.Registry

	FetchFailures   *prometheus.CounterVec // source label
	FetchSuccess    *prometheus.CounterVec // source label
	DecodeErrors    *prometheus.CounterVec // source label
	DroppedEntities *prometheus.CounterVec // reason label

	ReconcileCycles   prometheus.Counter
	ReconcileDuration prometheus.Histogram
	SnapshotVersion   prometheus.Gauge

	TrackedTrips    prometheus.Gauge
	TrackedVehicles prometheus.Gauge
	StaleVehicles   prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_fetch_failures_total",
			Help: "Poll cycles that exhausted all retries, per source.",
		}, []string{"source"}),
		FetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_fetch_success_total",
			Help: "Successful feed fetches, per source.",
		}, []string{"source"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_decode_errors_total",
			Help: "Whole-payload decode failures, per source.",
		}, []string{"source"}),
		DroppedEntities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_dropped_entities_total",
			Help: "Entities dropped during decode/validation, by reason.",
		}, []string{"reason"}),
		ReconcileCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_reconcile_cycles_total",
			Help: "Completed reconciliation cycles.",
		}),
		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_reconcile_duration_seconds",
			Help:    "Duration of one reconciliation pass.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		SnapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_snapshot_version",
			Help: "Version of the currently published snapshot.",
		}),
		TrackedTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_tracked_trips",
			Help: "Trips present in the current snapshot.",
		}),
		TrackedVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_tracked_vehicles",
			Help: "Vehicles present in the current snapshot.",
		}),
		StaleVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_stale_vehicles",
			Help: "Vehicles whose latest observation exceeds the staleness threshold.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
	}

	reg.MustRegister(
		c.FetchFailures, c.FetchSuccess, c.DecodeErrors, c.DroppedEntities,
		c.ReconcileCycles, c.ReconcileDuration, c.SnapshotVersion,
		c.TrackedTrips, c.TrackedVehicles, c.StaleVehicles,
		c.NATSPublished, c.NATSPublishErrs,
	)
	return c
}

// NATSPublishedInc and NATSPublishErrInc satisfy the publisher's metrics
// interface.
func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }

// Handler serves this collector's registry, for mounting at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
