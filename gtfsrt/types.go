package gtfsrt

// ScheduleRelationship classifies a stop call's adherence to plan.
type ScheduleRelationship int32

const (
	RelationshipScheduled ScheduleRelationship = iota
	RelationshipSkipped
	RelationshipNoData
	RelationshipCanceled
)

func (r ScheduleRelationship) String() string {
	switch r {
	case RelationshipScheduled:
		return "SCHEDULED"
	case RelationshipSkipped:
		return "SKIPPED"
	case RelationshipNoData:
		return "NO_DATA"
	case RelationshipCanceled:
		return "CANCELED"
	}
	return "UNKNOWN"
}

// Entity is the tagged variant over decoded feed records. Exactly three
// concrete kinds exist: *TripUpdate, *VehiclePosition and *Alert. Consumers
// switch exhaustively over these so a new kind is a compile-visible change.
type Entity interface {
	entityKind() string
}

func (*TripUpdate) entityKind() string      { return "trip_update" }
func (*VehiclePosition) entityKind() string { return "vehicle_position" }
func (*Alert) entityKind() string           { return "alert" }

// TimeEvent is a predicted arrival or departure: an absolute epoch time,
// a delay against schedule, or both. Time == 0 means no absolute time;
// Delay is only meaningful when DelaySet.
type TimeEvent struct {
	Time     int64
	Delay    int
	DelaySet bool
}

// StopTimeUpdate is one predicted stop call inside a TripUpdate.
type StopTimeUpdate struct {
	Sequence     int
	StopID       string
	Arrival      *TimeEvent
	Departure    *TimeEvent
	Relationship ScheduleRelationship
}

// TripUpdate carries the per-stop predictions of one trip.
// Timestamp is the source timestamp (entity-level when present, else the
// feed header), which drives newest-wins conflict resolution downstream.
type TripUpdate struct {
	TripID          string
	RouteID         string
	Canceled        bool
	Timestamp       int64
	StopTimeUpdates []StopTimeUpdate
}

// VehiclePosition is one observed vehicle location. TripID may be empty for
// an unassigned vehicle. Bearing and Speed are NaN when the feed omits them;
// StopSequence is -1 when unknown.
type VehiclePosition struct {
	VehicleID    string
	TripID       string
	Lat          float64
	Lon          float64
	Bearing      float64
	Speed        float64
	StopSequence int
	Timestamp    int64
}

// Alert is a simplified representation of a GTFS-RT service alert.
type Alert struct {
	ID          string
	Header      string
	Description string
	Cause       string
	Effect      string
	Severity    string
	Start       int64
	End         int64
	RouteIDs    []string
	TripIDs     []string
	StopIDs     []string
	Timestamp   int64
}
