package gtfsrt

import (
	"time"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
)

// DropStats counts entities (or stop calls within them) removed during
// validation, keyed by reason. Drops are an observability signal, not errors.
type DropStats struct {
	Malformed       int // carried over from decoding
	UnknownTrip     int
	UnknownStop     int
	UnknownRoute    int
	BadTimestamp    int // negative source timestamp
	FutureTimestamp int // beyond the configured skew tolerance
}

func (s DropStats) Total() int {
	return s.Malformed + s.UnknownTrip + s.UnknownStop + s.UnknownRoute + s.BadTimestamp + s.FutureTimestamp
}

// ValidateOptions bound what Validate accepts.
type ValidateOptions struct {
	// SkewTolerance is how far in the future a source timestamp may lie
	// relative to Now before the entity is dropped.
	SkewTolerance time.Duration
	Now           time.Time
}

// Validate resolves decoded entities against the static schedule graph and
// returns the surviving entities in their original order plus drop counts.
//
// Rules: trip and stop references must resolve against the graph; source
// timestamps must be non-negative and not further in the future than the
// skew tolerance. A vehicle position with no trip assignment is legal.
// Unknown informed-entity references on alerts are pruned but do not drop
// the alert itself.
func Validate(feed *Feed, graph *gtfs.ScheduleGraph, opts ValidateOptions) ([]Entity, DropStats) {
	stats := DropStats{Malformed: feed.Malformed}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	maxTS := now.Add(opts.SkewTolerance).Unix()

	out := make([]Entity, 0, len(feed.Entities))
	for _, e := range feed.Entities {
		switch v := e.(type) {
		case *TripUpdate:
			if ok := checkTimestamp(v.Timestamp, maxTS, &stats); !ok {
				continue
			}
			if !graph.HasTrip(v.TripID) {
				stats.UnknownTrip++
				continue
			}
			if v.RouteID != "" && !graph.HasRoute(v.RouteID) {
				stats.UnknownRoute++
				continue
			}
			kept := make([]StopTimeUpdate, 0, len(v.StopTimeUpdates))
			for _, stu := range v.StopTimeUpdates {
				if !resolveStopCall(graph, v.TripID, &stu) {
					stats.UnknownStop++
					continue
				}
				kept = append(kept, stu)
			}
			if len(kept) == 0 && !v.Canceled {
				// Nothing reconcilable left in this update.
				stats.UnknownStop++
				continue
			}
			v.StopTimeUpdates = kept
			out = append(out, v)
		case *VehiclePosition:
			if ok := checkTimestamp(v.Timestamp, maxTS, &stats); !ok {
				continue
			}
			if v.TripID != "" && !graph.HasTrip(v.TripID) {
				stats.UnknownTrip++
				continue
			}
			out = append(out, v)
		case *Alert:
			if ok := checkTimestamp(v.Timestamp, maxTS, &stats); !ok {
				continue
			}
			v.RouteIDs = filterKnown(v.RouteIDs, graph.HasRoute, &stats.UnknownRoute)
			v.TripIDs = filterKnown(v.TripIDs, graph.HasTrip, &stats.UnknownTrip)
			v.StopIDs = filterKnown(v.StopIDs, graph.HasStop, &stats.UnknownStop)
			out = append(out, v)
		}
	}
	return out, stats
}

// resolveStopCall anchors a stop time update to the trip's schedule. A call
// may arrive with only a sequence, only a stop id, or both; whichever is
// present must agree with the graph. The sequence is backfilled when the
// feed sent only a stop id.
func resolveStopCall(graph *gtfs.ScheduleGraph, tripID string, stu *StopTimeUpdate) bool {
	trip, _ := graph.Trip(tripID)
	if stu.Sequence >= 0 {
		st, ok := graph.StopTimeAt(tripID, stu.Sequence)
		if !ok {
			return false
		}
		if stu.StopID != "" && stu.StopID != st.StopID {
			return false
		}
		if stu.StopID == "" {
			stu.StopID = st.StopID
		}
		return true
	}
	// Stop id only: find the first scheduled call at that stop.
	for _, st := range trip.StopTimes {
		if st.StopID == stu.StopID {
			stu.Sequence = st.Sequence
			return true
		}
	}
	return false
}

func checkTimestamp(ts, maxTS int64, stats *DropStats) bool {
	if ts < 0 {
		stats.BadTimestamp++
		return false
	}
	if ts > maxTS {
		stats.FutureTimestamp++
		return false
	}
	return true
}

func filterKnown(ids []string, known func(string) bool, counter *int) []string {
	kept := ids[:0]
	for _, id := range ids {
		if known(id) {
			kept = append(kept, id)
		} else {
			*counter++
		}
	}
	return kept
}
