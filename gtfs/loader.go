package gtfs

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// NewScheduleGraphFromZip parses a GTFS bundle (agency.txt, routes.txt,
// stops.txt, trips.txt, stop_times.txt) from raw zip bytes and builds a
// validated graph.
func NewScheduleGraphFromZip(data []byte, agencyID string) (*ScheduleGraph, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open gtfs zip: %w", err)
	}
	b := newGraphBuilder()
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		if name == "routes.txt" || name == "trips.txt" || name == "stops.txt" || name == "stop_times.txt" || name == "agency.txt" {
			if err := b.consumeCSV(f); err != nil {
				return nil, fmt.Errorf("parse %s: %w", f.Name, err)
			}
		}
	}
	return b.build(agencyID)
}

// NewScheduleGraphFromFile loads a local GTFS zip, for CLI use.
func NewScheduleGraphFromFile(path, agencyID string) (*ScheduleGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gtfs zip: %w", err)
	}
	return NewScheduleGraphFromZip(data, agencyID)
}

type graphBuilder struct {
	agencyName string
	agencyTZ   string
	routes     []Route
	stops      []Stop
	tripMeta   map[string]Trip       // trip_id -> route/headsign, stop times filled later
	tripOrder  []string              // insertion order of trips
	stopTimes  map[string][]StopTime // trip_id -> unsorted stop times
}

func newGraphBuilder() *graphBuilder {
	return &graphBuilder{
		tripMeta:  map[string]Trip{},
		stopTimes: map[string][]StopTime{},
	}
}

func (b *graphBuilder) consumeCSV(f *zip.File) error {
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1
	rec, err := csvr.ReadAll()
	if err != nil {
		return err
	}
	if len(rec) == 0 {
		return nil
	}
	head := rec[0]
	idx := func(col string) int {
		for i, h := range head {
			if strings.EqualFold(strings.TrimSpace(h), col) {
				return i
			}
		}
		return -1
	}
	field := func(row []string, i int) string {
		if i >= 0 && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	switch strings.ToLower(f.Name) {
	case "agency.txt":
		aN := idx("agency_name")
		aTZ := idx("agency_timezone")
		if len(rec) > 1 {
			b.agencyName = field(rec[1], aN)
			b.agencyTZ = field(rec[1], aTZ)
		}
	case "routes.txt":
		rID := idx("route_id")
		rSN := idx("route_short_name")
		rLN := idx("route_long_name")
		rType := idx("route_type")
		for _, row := range rec[1:] {
			route := Route{
				ID:        field(row, rID),
				ShortName: field(row, rSN),
				LongName:  field(row, rLN),
			}
			if v := field(row, rType); v != "" {
				route.RouteType, _ = strconv.Atoi(v)
			}
			b.routes = append(b.routes, route)
		}
	case "stops.txt":
		sID := idx("stop_id")
		sN := idx("stop_name")
		sLat := idx("stop_lat")
		sLon := idx("stop_lon")
		for _, row := range rec[1:] {
			stop := Stop{ID: field(row, sID), Name: field(row, sN)}
			stop.Lat, _ = strconv.ParseFloat(field(row, sLat), 64)
			stop.Lon, _ = strconv.ParseFloat(field(row, sLon), 64)
			b.stops = append(b.stops, stop)
		}
	case "trips.txt":
		rID := idx("route_id")
		tID := idx("trip_id")
		hs := idx("trip_headsign")
		for _, row := range rec[1:] {
			id := field(row, tID)
			if id == "" {
				continue
			}
			b.tripMeta[id] = Trip{ID: id, RouteID: field(row, rID), Headsign: field(row, hs)}
			b.tripOrder = append(b.tripOrder, id)
		}
	case "stop_times.txt":
		tID := idx("trip_id")
		sID := idx("stop_id")
		sq := idx("stop_sequence")
		arr := idx("arrival_time")
		dep := idx("departure_time")
		for _, row := range rec[1:] {
			trip := field(row, tID)
			if trip == "" {
				continue
			}
			seq, err := strconv.Atoi(field(row, sq))
			if err != nil {
				continue
			}
			st := StopTime{
				StopID:    field(row, sID),
				Sequence:  seq,
				Arrival:   parseGTFSTime(field(row, arr)),
				Departure: parseGTFSTime(field(row, dep)),
			}
			b.stopTimes[trip] = append(b.stopTimes[trip], st)
		}
	}
	return nil
}

func (b *graphBuilder) build(agencyID string) (*ScheduleGraph, error) {
	trips := make([]Trip, 0, len(b.tripOrder))
	for _, id := range b.tripOrder {
		t := b.tripMeta[id]
		sts := b.stopTimes[id]
		sort.Slice(sts, func(i, j int) bool { return sts[i].Sequence < sts[j].Sequence })
		t.StopTimes = sts
		trips = append(trips, t)
	}
	g, err := NewScheduleGraph(agencyID, b.routes, b.stops, trips)
	if err != nil {
		return nil, err
	}
	g.agencyName = b.agencyName
	g.agencyTZ = b.agencyTZ
	return g, nil
}

// parseGTFSTime converts "HH:MM:SS" to seconds since midnight.
// Hours past 24 are kept as-is for overnight service. Returns -1 when unset.
func parseGTFSTime(s string) int {
	if s == "" {
		return -1
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return -1
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return -1
	}
	return h*3600 + m*60 + sec
}
