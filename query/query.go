package query

import (
	"errors"
	"sort"
	"time"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/gtfsrt"
	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
)

// ErrNotFound is the normal negative result for lookups of absent trips,
// vehicles or stops. It is not an internal failure.
var ErrNotFound = errors.New("not found")

// Service serves read-only queries against the current snapshot.
type Service struct {
	store              *tracking.Store
	graph              *gtfs.ScheduleGraph
	stalenessThreshold time.Duration
	loc                *time.Location

	now func() time.Time
}

func NewService(store *tracking.Store, graph *gtfs.ScheduleGraph, stalenessThreshold time.Duration) *Service {
	// Schedule times are local to the agency; resolve its zone once. An
	// absent or unknown zone falls back to UTC rather than the server's.
	loc := time.UTC
	if tz := graph.AgencyTimezone(); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	return &Service{
		store:              store,
		graph:              graph,
		stalenessThreshold: stalenessThreshold,
		loc:                loc,
		now:                time.Now,
	}
}

// TripStatusView is a trip status annotated with its freshness at query time.
// VehicleStale covers the embedded position, which can outlive the vehicle's
// own map entry; both flags are computed from the same snapshot the trip was
// read from.
type TripStatusView struct {
	*tracking.TripStatus
	Stale        bool
	VehicleStale bool
}

// VehiclePositionView is a vehicle position annotated with its freshness.
type VehiclePositionView struct {
	*tracking.VehiclePosition
	Stale bool
}

// CurrentSnapshotVersion returns the version of the snapshot queries would
// currently be served from.
func (s *Service) CurrentSnapshotVersion() uint64 {
	return s.store.Current().Version()
}

// GetTripStatus looks up one trip's live status.
func (s *Service) GetTripStatus(tripID string) (TripStatusView, error) {
	snap := s.store.Current()
	t, ok := snap.TripStatus(tripID)
	if !ok {
		return TripStatusView{}, ErrNotFound
	}
	return s.tripView(t), nil
}

// ListTripStatuses returns the live statuses of all tracked trips on a route.
// An unknown route id is ErrNotFound; a known route with no tracked trips
// yields an empty slice.
func (s *Service) ListTripStatuses(routeID string) ([]TripStatusView, error) {
	if !s.graph.HasRoute(routeID) {
		return nil, ErrNotFound
	}
	snap := s.store.Current()
	statuses := snap.TripStatusesForRoute(routeID)
	out := make([]TripStatusView, 0, len(statuses))
	for _, t := range statuses {
		out = append(out, s.tripView(t))
	}
	return out, nil
}

// ListAllTripStatuses returns every tracked trip in the current snapshot,
// in trip-id order.
func (s *Service) ListAllTripStatuses() []TripStatusView {
	snap := s.store.Current()
	statuses := snap.AllTripStatuses()
	out := make([]TripStatusView, 0, len(statuses))
	for _, t := range statuses {
		out = append(out, s.tripView(t))
	}
	return out
}

func (s *Service) tripView(t *tracking.TripStatus) TripStatusView {
	v := TripStatusView{TripStatus: t, Stale: s.tripStale(t)}
	if t.Vehicle != nil {
		v.VehicleStale = t.Vehicle.Stale(s.now(), s.stalenessThreshold)
	}
	return v
}

// GetVehiclePosition looks up the latest position of one vehicle.
func (s *Service) GetVehiclePosition(vehicleID string) (VehiclePositionView, error) {
	snap := s.store.Current()
	v, ok := snap.VehiclePosition(vehicleID)
	if !ok {
		return VehiclePositionView{}, ErrNotFound
	}
	return VehiclePositionView{VehiclePosition: v, Stale: v.Stale(s.now(), s.stalenessThreshold)}, nil
}

// IsStale reports whether a trip's data is older than the staleness
// threshold.
func (s *Service) IsStale(tripID string) (bool, error) {
	snap := s.store.Current()
	t, ok := snap.TripStatus(tripID)
	if !ok {
		return false, ErrNotFound
	}
	return s.tripStale(t), nil
}

func (s *Service) tripStale(t *tracking.TripStatus) bool {
	return s.now().Sub(t.UpdatedAt) > s.stalenessThreshold
}

// ListAlerts returns the active service alerts from the current snapshot.
func (s *Service) ListAlerts() []*gtfsrt.Alert {
	return s.store.Current().Alerts()
}

// Arrival is one upcoming call at a stop, scheduled time merged with the
// live prediction when the snapshot has one.
type Arrival struct {
	TripID       string
	RouteID      string
	Headsign     string
	StopID       string
	Scheduled    int   // seconds since midnight of the service day
	Predicted    int64 // epoch seconds, 0 when no live prediction
	DelaySec     int
	Relationship gtfsrt.ScheduleRelationship
	Stale        bool
}

// NextArrivals lists the upcoming scheduled arrivals at a stop, at most
// perRoute per route, ordered by scheduled time. Live predictions from the
// pinned snapshot are merged in; trips the snapshot marks canceled are
// omitted.
func (s *Service) NextArrivals(stopID string, perRoute int, now time.Time) ([]Arrival, error) {
	if !s.graph.HasStop(stopID) {
		return nil, ErrNotFound
	}
	snap := s.store.Current()
	return s.nextArrivals(snap, stopID, perRoute, now)
}

func (s *Service) nextArrivals(snap *tracking.Snapshot, stopID string, perRoute int, now time.Time) ([]Arrival, error) {
	if perRoute <= 0 {
		perRoute = 1
	}
	nowSec := secondsSinceMidnight(now.In(s.loc))

	var all []Arrival
	for _, tripID := range s.graph.TripIDsForStop(stopID) {
		trip, _ := s.graph.Trip(tripID)
		for _, st := range trip.StopTimes {
			if st.StopID != stopID || st.Arrival < 0 || st.Arrival <= nowSec {
				continue
			}
			a := Arrival{
				TripID:    tripID,
				RouteID:   trip.RouteID,
				Headsign:  trip.Headsign,
				StopID:    stopID,
				Scheduled: st.Arrival,
			}
			if status, ok := snap.TripStatus(tripID); ok {
				if status.Canceled {
					continue
				}
				if call, ok := status.StopCallAt(st.Sequence); ok {
					if call.Relationship == gtfsrt.RelationshipSkipped {
						continue
					}
					a.Predicted = call.PredictedArrival
					a.DelaySec = call.DelaySec
					a.Relationship = call.Relationship
				}
				a.Stale = s.tripStale(status)
			}
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Scheduled < all[j].Scheduled })

	// Cap per route, preserving overall time order.
	perRouteSeen := map[string]int{}
	out := all[:0]
	for _, a := range all {
		if perRouteSeen[a.RouteID] >= perRoute {
			continue
		}
		perRouteSeen[a.RouteID]++
		out = append(out, a)
	}
	return out, nil
}

// NextArrivalsByName resolves a station display name (which may cover
// several platforms) and merges the arrivals across its stops.
func (s *Service) NextArrivalsByName(name string, perRoute int, now time.Time) ([]Arrival, error) {
	stopIDs := s.graph.StopIDsByName(name)
	if len(stopIDs) == 0 {
		return nil, ErrNotFound
	}
	// One snapshot for the whole multi-stop query.
	snap := s.store.Current()
	var all []Arrival
	for _, id := range stopIDs {
		arrivals, err := s.nextArrivals(snap, id, perRoute, now)
		if err != nil {
			continue
		}
		all = append(all, arrivals...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Scheduled < all[j].Scheduled })
	return all, nil
}

func secondsSinceMidnight(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
