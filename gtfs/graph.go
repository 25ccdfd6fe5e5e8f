package gtfs

import (
	"fmt"
	"sort"
	"strings"
)

// Route is one line of the network (route_id from routes.txt).
// RouteType carries the GTFS mode enum (0=tram, 1=metro, 2=rail, 3=bus, ...).
type Route struct {
	ID        string
	ShortName string
	LongName  string
	RouteType int
}

// Stop is a boarding location (stop_id from stops.txt).
type Stop struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

// StopTime is one scheduled call of a trip. Arrival and Departure are
// seconds since midnight of the service day, as GTFS encodes them
// (values past 24h are legal for overnight trips).
type StopTime struct {
	StopID    string
	Sequence  int
	Arrival   int
	Departure int
}

// Trip is one scheduled run along a route's stop sequence.
// StopTimes are ordered by strictly increasing Sequence.
type Trip struct {
	ID        string
	RouteID   string
	Headsign  string
	StopTimes []StopTime
}

// ScheduleGraph stores the static schedule in memory for fast lookups.
// It is immutable after construction.
type ScheduleGraph struct {
	agencyID   string
	agencyName string
	agencyTZ   string

	routes map[string]*Route
	stops  map[string]*Stop
	trips  map[string]*Trip

	tripsByStop map[string][]string    // stop_id -> trip_ids calling there
	seqIndex    map[string]map[int]int // trip_id -> sequence -> index into StopTimes
	stopsByName map[string][]string    // lowercased stop_name -> stop_ids
}

// NewScheduleGraph builds and validates a graph from already-parsed records.
// The record slices are copied; callers may reuse them afterwards.
func NewScheduleGraph(agencyID string, routes []Route, stops []Stop, trips []Trip) (*ScheduleGraph, error) {
	g := &ScheduleGraph{
		agencyID:    agencyID,
		routes:      make(map[string]*Route, len(routes)),
		stops:       make(map[string]*Stop, len(stops)),
		trips:       make(map[string]*Trip, len(trips)),
		tripsByStop: map[string][]string{},
		seqIndex:    map[string]map[int]int{},
		stopsByName: map[string][]string{},
	}

	for i := range routes {
		r := routes[i]
		if r.ID == "" {
			return nil, fmt.Errorf("route %d: empty route_id", i)
		}
		g.routes[r.ID] = &r
	}
	for i := range stops {
		s := stops[i]
		if s.ID == "" {
			return nil, fmt.Errorf("stop %d: empty stop_id", i)
		}
		g.stops[s.ID] = &s
		if s.Name != "" {
			key := strings.ToLower(s.Name)
			g.stopsByName[key] = append(g.stopsByName[key], s.ID)
		}
	}
	for i := range trips {
		t := trips[i]
		if t.ID == "" {
			return nil, fmt.Errorf("trip %d: empty trip_id", i)
		}
		if _, ok := g.routes[t.RouteID]; !ok {
			return nil, fmt.Errorf("trip %s: unknown route %q", t.ID, t.RouteID)
		}
		t.StopTimes = append([]StopTime(nil), t.StopTimes...)
		seqIdx := make(map[int]int, len(t.StopTimes))
		prevSeq := -1
		for j, st := range t.StopTimes {
			if _, ok := g.stops[st.StopID]; !ok {
				return nil, fmt.Errorf("trip %s: stop time %d references unknown stop %q", t.ID, j, st.StopID)
			}
			if st.Sequence <= prevSeq {
				return nil, fmt.Errorf("trip %s: stop sequence not strictly increasing at index %d (%d after %d)", t.ID, j, st.Sequence, prevSeq)
			}
			prevSeq = st.Sequence
			seqIdx[st.Sequence] = j
			g.tripsByStop[st.StopID] = append(g.tripsByStop[st.StopID], t.ID)
		}
		g.trips[t.ID] = &t
		g.seqIndex[t.ID] = seqIdx
	}

	// Deterministic iteration for callers that list trips.
	for _, ids := range g.tripsByStop {
		sort.Strings(ids)
	}
	return g, nil
}

// Accessor methods

func (g *ScheduleGraph) AgencyID() string   { return g.agencyID }
func (g *ScheduleGraph) AgencyName() string { return g.agencyName }

// AgencyTimezone returns the agency_timezone of agency.txt ("" when the
// graph was built without one).
func (g *ScheduleGraph) AgencyTimezone() string { return g.agencyTZ }

func (g *ScheduleGraph) Route(routeID string) (*Route, bool) {
	r, ok := g.routes[routeID]
	return r, ok
}

func (g *ScheduleGraph) Stop(stopID string) (*Stop, bool) {
	s, ok := g.stops[stopID]
	return s, ok
}

func (g *ScheduleGraph) Trip(tripID string) (*Trip, bool) {
	t, ok := g.trips[tripID]
	return t, ok
}

func (g *ScheduleGraph) HasRoute(routeID string) bool { _, ok := g.routes[routeID]; return ok }
func (g *ScheduleGraph) HasStop(stopID string) bool   { _, ok := g.stops[stopID]; return ok }
func (g *ScheduleGraph) HasTrip(tripID string) bool   { _, ok := g.trips[tripID]; return ok }

func (g *ScheduleGraph) RouteCount() int { return len(g.routes) }
func (g *ScheduleGraph) StopCount() int  { return len(g.stops) }
func (g *ScheduleGraph) TripCount() int  { return len(g.trips) }

// TripIDsForStop returns the trips that call at a stop in stable order.
func (g *ScheduleGraph) TripIDsForStop(stopID string) []string { return g.tripsByStop[stopID] }

// StopIDsByName resolves a stop display name (case-insensitive) to stop ids.
// Several platforms of one station commonly share a name.
func (g *ScheduleGraph) StopIDsByName(name string) []string {
	return g.stopsByName[strings.ToLower(name)]
}

// StopTimeAt returns the scheduled call of a trip at a given sequence number.
func (g *ScheduleGraph) StopTimeAt(tripID string, sequence int) (StopTime, bool) {
	idx, ok := g.seqIndex[tripID]
	if !ok {
		return StopTime{}, false
	}
	j, ok := idx[sequence]
	if !ok {
		return StopTime{}, false
	}
	return g.trips[tripID].StopTimes[j], true
}

// HasStopSequence reports whether a trip has a scheduled call at sequence.
func (g *ScheduleGraph) HasStopSequence(tripID string, sequence int) bool {
	idx, ok := g.seqIndex[tripID]
	if !ok {
		return false
	}
	_, ok = idx[sequence]
	return ok
}

// RouteIDForTrip returns the owning route of a trip ("" when unknown).
func (g *ScheduleGraph) RouteIDForTrip(tripID string) string {
	if t, ok := g.trips[tripID]; ok {
		return t.RouteID
	}
	return ""
}
