package gtfsrt

import (
	"errors"
	"fmt"
	"math"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// DecodeError marks a payload whose protobuf container could not be parsed.
// Per-entity problems never produce a DecodeError; they are skipped and
// counted instead.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode feed payload: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

var errEmptyPayload = errors.New("empty payload")

// Feed is the decoded form of one raw payload.
type Feed struct {
	HeaderTimestamp int64
	Entities        []Entity
	Malformed       int // entities skipped because required fields were absent
}

// Decode parses a raw GTFS-RT payload into tagged entities. It returns a
// *DecodeError only when the whole container is unparseable; individual
// malformed entities are counted in Feed.Malformed and skipped.
func Decode(payload []byte) (*Feed, error) {
	if len(payload) == 0 {
		return nil, &DecodeError{Err: errEmptyPayload}
	}
	fm := &gtfsrtpb.FeedMessage{}
	if err := proto.Unmarshal(payload, fm); err != nil {
		return nil, &DecodeError{Err: err}
	}

	feed := &Feed{}
	if fm.Header != nil && fm.Header.Timestamp != nil {
		feed.HeaderTimestamp = int64(*fm.Header.Timestamp)
	}

	for _, e := range fm.Entity {
		switch {
		case e.TripUpdate != nil:
			tu, ok := decodeTripUpdate(e.TripUpdate, feed.HeaderTimestamp)
			if !ok {
				feed.Malformed++
				continue
			}
			feed.Entities = append(feed.Entities, tu)
		case e.Vehicle != nil:
			vp, ok := decodeVehiclePosition(e.Vehicle, feed.HeaderTimestamp)
			if !ok {
				feed.Malformed++
				continue
			}
			feed.Entities = append(feed.Entities, vp)
		case e.Alert != nil:
			feed.Entities = append(feed.Entities, decodeAlert(e, feed.HeaderTimestamp))
		}
	}
	return feed, nil
}

func decodeTripUpdate(tu *gtfsrtpb.TripUpdate, headerTS int64) (*TripUpdate, bool) {
	if tu.Trip == nil || tu.Trip.TripId == nil || *tu.Trip.TripId == "" {
		return nil, false
	}
	out := &TripUpdate{
		TripID:    *tu.Trip.TripId,
		Timestamp: headerTS,
	}
	if tu.Trip.RouteId != nil {
		out.RouteID = *tu.Trip.RouteId
	}
	if tu.Trip.ScheduleRelationship != nil && *tu.Trip.ScheduleRelationship == gtfsrtpb.TripDescriptor_CANCELED {
		out.Canceled = true
	}
	if tu.Timestamp != nil && *tu.Timestamp != 0 {
		out.Timestamp = int64(*tu.Timestamp)
	}
	for _, stu := range tu.StopTimeUpdate {
		upd := StopTimeUpdate{Sequence: -1}
		if stu.StopSequence != nil {
			upd.Sequence = int(*stu.StopSequence)
		}
		if stu.StopId != nil {
			upd.StopID = *stu.StopId
		}
		if upd.Sequence < 0 && upd.StopID == "" {
			// No way to anchor this call to the schedule.
			continue
		}
		upd.Arrival = decodeTimeEvent(stu.Arrival)
		upd.Departure = decodeTimeEvent(stu.Departure)
		if stu.ScheduleRelationship != nil {
			switch *stu.ScheduleRelationship {
			case gtfsrtpb.TripUpdate_StopTimeUpdate_SKIPPED:
				upd.Relationship = RelationshipSkipped
			case gtfsrtpb.TripUpdate_StopTimeUpdate_NO_DATA:
				upd.Relationship = RelationshipNoData
			default:
				upd.Relationship = RelationshipScheduled
			}
		}
		out.StopTimeUpdates = append(out.StopTimeUpdates, upd)
	}
	return out, true
}

func decodeTimeEvent(ev *gtfsrtpb.TripUpdate_StopTimeEvent) *TimeEvent {
	if ev == nil {
		return nil
	}
	te := &TimeEvent{}
	if ev.Time != nil {
		te.Time = *ev.Time
	}
	if ev.Delay != nil {
		te.Delay = int(*ev.Delay)
		te.DelaySet = true
	}
	if te.Time == 0 && !te.DelaySet {
		return nil
	}
	return te
}

func decodeVehiclePosition(v *gtfsrtpb.VehiclePosition, headerTS int64) (*VehiclePosition, bool) {
	if v.Vehicle == nil || v.Vehicle.Id == nil || *v.Vehicle.Id == "" {
		return nil, false
	}
	if v.Position == nil || v.Position.Latitude == nil || v.Position.Longitude == nil {
		return nil, false
	}
	out := &VehiclePosition{
		VehicleID:    *v.Vehicle.Id,
		Lat:          float64(*v.Position.Latitude),
		Lon:          float64(*v.Position.Longitude),
		Bearing:      math.NaN(),
		Speed:        math.NaN(),
		StopSequence: -1,
		Timestamp:    headerTS,
	}
	if v.Trip != nil && v.Trip.TripId != nil {
		out.TripID = *v.Trip.TripId
	}
	if v.Position.Bearing != nil {
		out.Bearing = float64(*v.Position.Bearing)
	}
	if v.Position.Speed != nil {
		out.Speed = float64(*v.Position.Speed)
	}
	if v.CurrentStopSequence != nil {
		out.StopSequence = int(*v.CurrentStopSequence)
	}
	if v.Timestamp != nil && *v.Timestamp != 0 {
		out.Timestamp = int64(*v.Timestamp)
	}
	return out, true
}

func decodeAlert(e *gtfsrtpb.FeedEntity, headerTS int64) *Alert {
	a := e.Alert
	out := &Alert{Timestamp: headerTS}
	if e.Id != nil {
		out.ID = *e.Id
	}
	if a.HeaderText != nil {
		out.Header = translatedText(a.HeaderText)
	}
	if a.DescriptionText != nil {
		out.Description = translatedText(a.DescriptionText)
	}
	if a.Cause != nil {
		out.Cause = a.Cause.String()
	}
	if a.Effect != nil {
		out.Effect = a.Effect.String()
	}
	if a.SeverityLevel != nil {
		out.Severity = a.SeverityLevel.String()
	}
	// ActivePeriod: pick the first window.
	if len(a.ActivePeriod) > 0 {
		ap := a.ActivePeriod[0]
		if ap.Start != nil {
			out.Start = int64(*ap.Start)
		}
		if ap.End != nil {
			out.End = int64(*ap.End)
		}
	}
	for _, ie := range a.InformedEntity {
		if ie.RouteId != nil {
			out.RouteIDs = append(out.RouteIDs, *ie.RouteId)
		}
		if ie.Trip != nil && ie.Trip.TripId != nil {
			out.TripIDs = append(out.TripIDs, *ie.Trip.TripId)
		}
		if ie.StopId != nil {
			out.StopIDs = append(out.StopIDs, *ie.StopId)
		}
	}
	return out
}

// translatedText picks the untranslated entry when present, else the first.
func translatedText(ts *gtfsrtpb.TranslatedString) string {
	var first string
	for _, tr := range ts.Translation {
		if tr.Text == nil {
			continue
		}
		if tr.Language == nil || *tr.Language == "" {
			return *tr.Text
		}
		if first == "" {
			first = *tr.Text
		}
	}
	return first
}
