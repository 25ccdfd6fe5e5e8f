package tracking

import (
	"time"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/gtfsrt"
)

// Batch is the validated output of one poll cycle from one source.
type Batch struct {
	SourceID  string
	Priority  int // lower wins timestamp ties
	FetchedAt time.Time
	Entities  []gtfsrt.Entity
}

// Config holds the reconciliation thresholds.
type Config struct {
	// OnTimeThreshold is the delay magnitude up to which a trip still
	// counts as on time.
	OnTimeThreshold time.Duration
	// Expiry removes records from the live view after this long without
	// any update. Zero disables expiry.
	Expiry time.Duration
}

// Stats summarizes one reconciliation pass.
type Stats struct {
	TripsUpdated    int
	VehiclesUpdated int
	AlertsUpdated   int
	StopCallsMerged int
	ConflictsLost   int // incoming records that lost conflict resolution
	UnknownTrips    int
	Expired         int
}

// Reconciler merges validated entity batches into successor snapshots.
// It is not safe for concurrent use; the engine runs exactly one
// reconciliation pass at a time, which is what keeps snapshot versions
// strictly sequential.
type Reconciler struct {
	graph *gtfs.ScheduleGraph
	cfg   Config

	arrivalCounter uint64 // total order over everything ever merged
}

func NewReconciler(graph *gtfs.ScheduleGraph, cfg Config) *Reconciler {
	return &Reconciler{graph: graph, cfg: cfg}
}

// Reconcile produces the successor of prev with the batch applied. prev is
// never mutated. now becomes the new snapshot's generation timestamp.
func (r *Reconciler) Reconcile(prev *Snapshot, batch Batch, now time.Time) (*Snapshot, Stats) {
	next := prev.next(now)
	var stats Stats

	for _, e := range batch.Entities {
		switch v := e.(type) {
		case *gtfsrt.TripUpdate:
			r.mergeTripUpdate(next, batch, v, now, &stats)
		case *gtfsrt.VehiclePosition:
			r.mergeVehiclePosition(next, batch, v, now, &stats)
		case *gtfsrt.Alert:
			next.alerts[v.ID] = v
			stats.AlertsUpdated++
		}
	}

	if r.cfg.Expiry > 0 {
		r.expire(next, now, &stats)
	}
	next.reindex()
	return next, stats
}

func (r *Reconciler) mergeTripUpdate(next *Snapshot, batch Batch, tu *gtfsrt.TripUpdate, now time.Time, stats *Stats) {
	// Validation already filtered unknown trips; this guard keeps one bad
	// record from ever poisoning a cycle if a caller skips validation.
	if !r.graph.HasTrip(tu.TripID) {
		stats.UnknownTrips++
		return
	}
	r.arrivalCounter++
	order := r.arrivalCounter

	cur, ok := next.trips[tu.TripID]
	if !ok {
		cur = &TripStatus{
			TripID:  tu.TripID,
			RouteID: r.routeFor(tu),
		}
	}
	upd := cur.clone()

	// Trip-level record (canceled flag) follows the same newest-wins rule.
	if tu.Timestamp >= upd.tripTimestamp {
		upd.Canceled = tu.Canceled
		upd.tripTimestamp = tu.Timestamp
	}

	merged := false
	for _, stu := range tu.StopTimeUpdates {
		incoming := StopCall{
			Sequence:        stu.Sequence,
			StopID:          stu.StopID,
			Relationship:    stu.Relationship,
			SourceTimestamp: tu.Timestamp,
			SourceID:        batch.SourceID,
			sourcePriority:  batch.Priority,
			arrivalOrder:    order,
		}
		if stu.Arrival != nil {
			incoming.PredictedArrival = stu.Arrival.Time
			if stu.Arrival.DelaySet {
				incoming.DelaySec = stu.Arrival.Delay
				incoming.DelaySet = true
			}
		}
		if stu.Departure != nil {
			incoming.PredictedDeparture = stu.Departure.Time
			if !incoming.DelaySet && stu.Departure.DelaySet {
				incoming.DelaySec = stu.Departure.Delay
				incoming.DelaySet = true
			}
		}
		if applyStopCall(upd, incoming) {
			stats.StopCallsMerged++
			merged = true
		} else {
			stats.ConflictsLost++
		}
	}

	if !merged && upd.Canceled == cur.Canceled && upd.tripTimestamp == cur.tripTimestamp {
		return // nothing won; keep the previous record untouched
	}
	upd.UpdatedAt = now
	upd.Adherence, upd.DelaySec = deriveAdherence(upd, r.cfg.OnTimeThreshold)
	next.trips[tu.TripID] = upd
	stats.TripsUpdated++
}

// applyStopCall installs incoming unless the already-recorded call for that
// sequence wins conflict resolution: newer source timestamp first, then
// better (lower) source priority, then later arrival.
func applyStopCall(t *TripStatus, incoming StopCall) bool {
	for i, cur := range t.Stops {
		if cur.Sequence != incoming.Sequence {
			continue
		}
		if !incoming.beats(cur) {
			return false
		}
		t.Stops[i] = incoming
		return true
	}
	// First record for this sequence; keep Stops ordered.
	at := len(t.Stops)
	for i, cur := range t.Stops {
		if incoming.Sequence < cur.Sequence {
			at = i
			break
		}
	}
	t.Stops = append(t.Stops, StopCall{})
	copy(t.Stops[at+1:], t.Stops[at:])
	t.Stops[at] = incoming
	return true
}

func (c StopCall) beats(cur StopCall) bool {
	if c.SourceTimestamp != cur.SourceTimestamp {
		return c.SourceTimestamp > cur.SourceTimestamp
	}
	if c.sourcePriority != cur.sourcePriority {
		return c.sourcePriority < cur.sourcePriority
	}
	return c.arrivalOrder >= cur.arrivalOrder
}

// deriveAdherence computes the aggregate relationship: canceled wins; else
// the latest stop call decides, with delay magnitude measured against the
// on-time threshold.
func deriveAdherence(t *TripStatus, onTime time.Duration) (Adherence, int) {
	if t.Canceled {
		return AdherenceCanceled, 0
	}
	if len(t.Stops) == 0 {
		return AdherenceNoData, 0
	}
	last := t.Stops[len(t.Stops)-1]
	if last.Relationship == gtfsrt.RelationshipSkipped {
		return AdherenceSkipped, 0
	}
	// Walk back to the latest non-skipped call carrying a usable delay.
	for i := len(t.Stops) - 1; i >= 0; i-- {
		c := t.Stops[i]
		if c.Relationship == gtfsrt.RelationshipSkipped || c.Relationship == gtfsrt.RelationshipNoData {
			continue
		}
		if !c.DelaySet {
			continue
		}
		d := c.DelaySec
		if d < 0 {
			d = -d
		}
		if time.Duration(d)*time.Second <= onTime {
			return AdherenceOnTime, c.DelaySec
		}
		return AdherenceDelayed, c.DelaySec
	}
	return AdherenceNoData, 0
}

func (r *Reconciler) mergeVehiclePosition(next *Snapshot, batch Batch, vp *gtfsrt.VehiclePosition, now time.Time, stats *Stats) {
	if vp.TripID != "" && !r.graph.HasTrip(vp.TripID) {
		stats.UnknownTrips++
		return
	}
	r.arrivalCounter++

	incoming := &VehiclePosition{
		VehicleID:      vp.VehicleID,
		TripID:         vp.TripID,
		Lat:            vp.Lat,
		Lon:            vp.Lon,
		Bearing:        vp.Bearing,
		Speed:          vp.Speed,
		StopSequence:   vp.StopSequence,
		Timestamp:      vp.Timestamp,
		SourceID:       batch.SourceID,
		sourcePriority: batch.Priority,
		arrivalOrder:   r.arrivalCounter,
	}

	if cur, ok := next.vehicles[vp.VehicleID]; ok {
		if !vehicleBeats(incoming, cur) {
			stats.ConflictsLost++
			return
		}
		// Reassignment: detach the position from the trip it used to serve.
		if cur.TripID != "" && cur.TripID != incoming.TripID {
			if old, ok := next.trips[cur.TripID]; ok && old.Vehicle != nil && old.Vehicle.VehicleID == vp.VehicleID {
				upd := old.clone()
				upd.Vehicle = nil
				next.trips[cur.TripID] = upd
			}
		}
	}
	next.vehicles[vp.VehicleID] = incoming
	stats.VehiclesUpdated++

	if incoming.TripID != "" {
		cur, ok := next.trips[incoming.TripID]
		if !ok {
			cur = &TripStatus{TripID: incoming.TripID, RouteID: r.graph.RouteIDForTrip(incoming.TripID)}
		}
		upd := cur.clone()
		upd.Vehicle = incoming
		// A vehicle observation attaches to the trip but does not refresh
		// its prediction record; trips and vehicles expire independently.
		if !ok {
			upd.UpdatedAt = now
			upd.Adherence = AdherenceNoData
		}
		next.trips[incoming.TripID] = upd
	}
}

func vehicleBeats(incoming, cur *VehiclePosition) bool {
	if incoming.Timestamp != cur.Timestamp {
		return incoming.Timestamp > cur.Timestamp
	}
	if incoming.sourcePriority != cur.sourcePriority {
		return incoming.sourcePriority < cur.sourcePriority
	}
	return incoming.arrivalOrder >= cur.arrivalOrder
}

// expire drops records that have not been refreshed within the expiry
// window. Stale-but-not-expired records are kept and flagged at query time.
func (r *Reconciler) expire(next *Snapshot, now time.Time, stats *Stats) {
	cutoff := now.Add(-r.cfg.Expiry)
	for id, t := range next.trips {
		if t.UpdatedAt.Before(cutoff) {
			delete(next.trips, id)
			stats.Expired++
		}
	}
	for id, v := range next.vehicles {
		if time.Unix(v.Timestamp, 0).Before(cutoff) {
			delete(next.vehicles, id)
			stats.Expired++
		}
	}
}

func (r *Reconciler) routeFor(tu *gtfsrt.TripUpdate) string {
	if tu.RouteID != "" {
		return tu.RouteID
	}
	return r.graph.RouteIDForTrip(tu.TripID)
}
