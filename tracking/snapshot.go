package tracking

import (
	"sort"
	"time"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfsrt"
)

// Adherence is a trip's aggregate schedule relationship, derived from its
// most recent stop-level updates.
type Adherence int

const (
	AdherenceNoData Adherence = iota
	AdherenceOnTime
	AdherenceDelayed
	AdherenceSkipped
	AdherenceCanceled
)

func (a Adherence) String() string {
	switch a {
	case AdherenceOnTime:
		return "ON_TIME"
	case AdherenceDelayed:
		return "DELAYED"
	case AdherenceSkipped:
		return "SKIPPED"
	case AdherenceCanceled:
		return "CANCELED"
	}
	return "NO_DATA"
}

// StopCall is the winning prediction for one (trip, stop sequence) pair,
// together with the provenance that decided the conflict.
type StopCall struct {
	Sequence           int
	StopID             string
	PredictedArrival   int64 // epoch seconds, 0 when unknown
	PredictedDeparture int64
	DelaySec           int
	DelaySet           bool
	Relationship       gtfsrt.ScheduleRelationship

	SourceTimestamp int64
	SourceID        string
	sourcePriority  int
	arrivalOrder    uint64
}

// TripStatus is the reconciled live view of one trip. Instances are
// immutable once they appear in a published snapshot.
type TripStatus struct {
	TripID    string
	RouteID   string
	Adherence Adherence
	DelaySec  int // delay backing the adherence, 0 when not applicable
	Canceled  bool
	Stops     []StopCall // ordered by sequence
	Vehicle   *VehiclePosition
	UpdatedAt time.Time // freshness of the newest applied update

	tripTimestamp int64 // source timestamp of the trip-level record
}

// clone makes a mutable copy for copy-on-write reconciliation.
func (t *TripStatus) clone() *TripStatus {
	cp := *t
	cp.Stops = make([]StopCall, len(t.Stops))
	copy(cp.Stops, t.Stops)
	return &cp
}

// StopCallAt returns the merged call at a sequence number, if any.
func (t *TripStatus) StopCallAt(sequence int) (StopCall, bool) {
	for _, c := range t.Stops {
		if c.Sequence == sequence {
			return c, true
		}
	}
	return StopCall{}, false
}

// VehiclePosition is the latest observed position of one vehicle.
type VehiclePosition struct {
	VehicleID    string
	TripID       string // "" when unassigned
	Lat          float64
	Lon          float64
	Bearing      float64 // NaN when unknown
	Speed        float64 // NaN when unknown
	StopSequence int     // -1 when unknown
	Timestamp    int64   // observation time reported by the feed
	SourceID     string

	sourcePriority int
	arrivalOrder   uint64
}

// Stale reports whether the observation is older than threshold at now.
// Stale positions stay in the snapshot until superseded or expired.
func (v *VehiclePosition) Stale(now time.Time, threshold time.Duration) bool {
	return now.Sub(time.Unix(v.Timestamp, 0)) > threshold
}

// Snapshot is an immutable, versioned aggregate of all tracked state.
type Snapshot struct {
	version     uint64
	generatedAt time.Time

	trips        map[string]*TripStatus
	vehicles     map[string]*VehiclePosition
	alerts       map[string]*gtfsrt.Alert
	tripsByRoute map[string][]string
}

// NewEmptySnapshot returns the version-0 snapshot a store starts from.
func NewEmptySnapshot(now time.Time) *Snapshot {
	return &Snapshot{
		version:      0,
		generatedAt:  now,
		trips:        map[string]*TripStatus{},
		vehicles:     map[string]*VehiclePosition{},
		alerts:       map[string]*gtfsrt.Alert{},
		tripsByRoute: map[string][]string{},
	}
}

func (s *Snapshot) Version() uint64        { return s.version }
func (s *Snapshot) GeneratedAt() time.Time { return s.generatedAt }
func (s *Snapshot) TripCount() int         { return len(s.trips) }
func (s *Snapshot) VehicleCount() int      { return len(s.vehicles) }

func (s *Snapshot) TripStatus(tripID string) (*TripStatus, bool) {
	t, ok := s.trips[tripID]
	return t, ok
}

func (s *Snapshot) VehiclePosition(vehicleID string) (*VehiclePosition, bool) {
	v, ok := s.vehicles[vehicleID]
	return v, ok
}

// TripStatusesForRoute returns the route's tracked trips in trip-id order.
func (s *Snapshot) TripStatusesForRoute(routeID string) []*TripStatus {
	ids := s.tripsByRoute[routeID]
	out := make([]*TripStatus, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.trips[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// AllTripStatuses returns every tracked trip in trip-id order.
func (s *Snapshot) AllTripStatuses() []*TripStatus {
	out := make([]*TripStatus, 0, len(s.trips))
	for _, t := range s.trips {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TripID < out[j].TripID })
	return out
}

// AllVehiclePositions returns every tracked vehicle in vehicle-id order.
func (s *Snapshot) AllVehiclePositions() []*VehiclePosition {
	out := make([]*VehiclePosition, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

// Alerts returns the active alerts in id order.
func (s *Snapshot) Alerts() []*gtfsrt.Alert {
	out := make([]*gtfsrt.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// next prepares the successor snapshot: version+1, shallow map copies so the
// reconciler can replace entries without touching the published maps.
func (s *Snapshot) next(now time.Time) *Snapshot {
	n := &Snapshot{
		version:      s.version + 1,
		generatedAt:  now,
		trips:        make(map[string]*TripStatus, len(s.trips)),
		vehicles:     make(map[string]*VehiclePosition, len(s.vehicles)),
		alerts:       make(map[string]*gtfsrt.Alert, len(s.alerts)),
		tripsByRoute: map[string][]string{},
	}
	for id, t := range s.trips {
		n.trips[id] = t
	}
	for id, v := range s.vehicles {
		n.vehicles[id] = v
	}
	for id, a := range s.alerts {
		n.alerts[id] = a
	}
	return n
}

// reindex rebuilds the route index after the trip set changed.
func (s *Snapshot) reindex() {
	s.tripsByRoute = make(map[string][]string, len(s.tripsByRoute))
	for id, t := range s.trips {
		if t.RouteID != "" {
			s.tripsByRoute[t.RouteID] = append(s.tripsByRoute[t.RouteID], id)
		}
	}
	for _, ids := range s.tripsByRoute {
		sort.Strings(ids)
	}
}
