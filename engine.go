package tracker

import (
	"context"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/gtfsrt"
	"github.com/theoremus-urban-solutions/transit-tracker/metrics"
	"github.com/theoremus-urban-solutions/transit-tracker/poller"
	"github.com/theoremus-urban-solutions/transit-tracker/publisher"
	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
)

// Engine runs the ingestion pipeline: poll results in, decoded and validated
// entities through the reconciler, a fresh snapshot published per cycle.
//
// All reconciliation happens on the single goroutine inside Run, which is
// what keeps snapshot versions strictly sequential no matter how many feed
// sources are polled concurrently.
type Engine struct {
	graph   *gtfs.ScheduleGraph
	store   *tracking.Store
	rec     *tracking.Reconciler
	poller  *poller.Poller
	metrics *metrics.Collector
	pub     *publisher.NATSPublisher // nil when NATS is not configured

	skew      time.Duration
	staleness time.Duration

	lastFeedEpoch atomic.Int64
}

type EngineOptions struct {
	SkewTolerance      time.Duration
	StalenessThreshold time.Duration
}

func NewEngine(graph *gtfs.ScheduleGraph, store *tracking.Store, rec *tracking.Reconciler, p *poller.Poller, col *metrics.Collector, pub *publisher.NATSPublisher, opts EngineOptions) *Engine {
	return &Engine{
		graph:     graph,
		store:     store,
		rec:       rec,
		poller:    p,
		metrics:   col,
		pub:       pub,
		skew:      opts.SkewTolerance,
		staleness: opts.StalenessThreshold,
	}
}

// LatestFeedEpoch is the newest header timestamp seen across all sources,
// zero before the first successful decode.
func (e *Engine) LatestFeedEpoch() int64 { return e.lastFeedEpoch.Load() }

// Run consumes poll results until ctx is cancelled and the poller's result
// channel drains.
func (e *Engine) Run(ctx context.Context) {
	go e.poller.Run(ctx)
	for res := range e.poller.Results() {
		e.handleResult(res)
	}
	log.Printf("engine stopped")
}

func (e *Engine) handleResult(res poller.Result) {
	if res.Err != nil {
		log.Printf("feed %s: poll failed: %v", res.SourceID, res.Err)
		e.metrics.FetchFailures.WithLabelValues(res.SourceID).Inc()
		return
	}
	e.metrics.FetchSuccess.WithLabelValues(res.SourceID).Inc()

	feed, err := gtfsrt.Decode(res.Payload)
	if err != nil {
		log.Printf("feed %s: decode failed: %v", res.SourceID, err)
		e.metrics.DecodeErrors.WithLabelValues(res.SourceID).Inc()
		return
	}
	if ts := feed.HeaderTimestamp; ts > e.lastFeedEpoch.Load() {
		e.lastFeedEpoch.Store(ts)
	}

	now := time.Now()
	entities, drops := gtfsrt.Validate(feed, e.graph, gtfsrt.ValidateOptions{
		SkewTolerance: e.skew,
		Now:           now,
	})
	e.recordDrops(drops)

	batch := tracking.Batch{
		SourceID:  res.SourceID,
		Priority:  res.Priority,
		FetchedAt: res.FetchedAt,
		Entities:  entities,
	}

	start := time.Now()
	next, stats := e.rec.Reconcile(e.store.Current(), batch, now)
	if err := e.store.Publish(next); err != nil {
		log.Printf("feed %s: publish snapshot: %v", res.SourceID, err)
		return
	}
	e.metrics.ReconcileCycles.Inc()
	e.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	e.observeSnapshot(next, now)

	e.publishBatch(next, batch)

	log.Printf("feed %s: snapshot v%d: %d trips updated, %d vehicles updated, %d stop calls merged, %d conflicts lost, %d dropped, %d expired",
		res.SourceID, next.Version(), stats.TripsUpdated, stats.VehiclesUpdated, stats.StopCallsMerged, stats.ConflictsLost, drops.Total(), stats.Expired)
}

func (e *Engine) recordDrops(drops gtfsrt.DropStats) {
	add := func(reason string, n int) {
		if n > 0 {
			e.metrics.DroppedEntities.WithLabelValues(reason).Add(float64(n))
		}
	}
	add("malformed", drops.Malformed)
	add("unknown_trip", drops.UnknownTrip)
	add("unknown_stop", drops.UnknownStop)
	add("unknown_route", drops.UnknownRoute)
	add("bad_timestamp", drops.BadTimestamp)
	add("future_timestamp", drops.FutureTimestamp)
}

func (e *Engine) observeSnapshot(snap *tracking.Snapshot, now time.Time) {
	e.metrics.SnapshotVersion.Set(float64(snap.Version()))
	e.metrics.TrackedTrips.Set(float64(snap.TripCount()))
	e.metrics.TrackedVehicles.Set(float64(snap.VehicleCount()))

	stale := 0
	for _, v := range snap.AllVehiclePositions() {
		if v.Stale(now, e.staleness) {
			stale++
		}
	}
	e.metrics.StaleVehicles.Set(float64(stale))
}

// publishBatch fans the cycle's updated records out over NATS. Only records
// touched by this batch are published, not the full snapshot.
func (e *Engine) publishBatch(snap *tracking.Snapshot, batch tracking.Batch) {
	if e.pub == nil {
		return
	}
	for _, ent := range batch.Entities {
		switch v := ent.(type) {
		case *gtfsrt.TripUpdate:
			t, ok := snap.TripStatus(v.TripID)
			if !ok {
				continue
			}
			err := e.pub.PublishTripStatus(publisher.TripStatusMessage{
				TripID:    t.TripID,
				RouteID:   t.RouteID,
				Adherence: t.Adherence.String(),
				DelaySec:  t.DelaySec,
				Canceled:  t.Canceled,
				UpdatedAt: t.UpdatedAt,
				Version:   snap.Version(),
			})
			if err != nil {
				log.Printf("nats publish trip %s: %v", t.TripID, err)
			}
		case *gtfsrt.VehiclePosition:
			p, ok := snap.VehiclePosition(v.VehicleID)
			if !ok {
				continue
			}
			msg := publisher.PositionMessage{
				VehicleID: p.VehicleID,
				TripID:    p.TripID,
				RouteID:   e.graph.RouteIDForTrip(p.TripID),
				Lat:       p.Lat,
				Lon:       p.Lon,
				Timestamp: p.Timestamp,
				Version:   snap.Version(),
			}
			if !math.IsNaN(p.Bearing) {
				msg.Bearing = p.Bearing
			}
			if !math.IsNaN(p.Speed) {
				msg.SpeedMps = p.Speed
			}
			if err := e.pub.PublishPosition(msg); err != nil {
				log.Printf("nats publish vehicle %s: %v", p.VehicleID, err)
			}
		}
	}
}
