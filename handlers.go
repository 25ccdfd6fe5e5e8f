package tracker

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/theoremus-urban-solutions/transit-tracker/query"
	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
	"github.com/theoremus-urban-solutions/transit-tracker/utils"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// API shapes. Internal records carry NaN sentinels and enum ints; the wire
// form uses optional fields and enum names instead.

type apiStopCall struct {
	Sequence           int    `json:"sequence"`
	StopID             string `json:"stopId"`
	PredictedArrival   string `json:"predictedArrival,omitempty"`
	PredictedDeparture string `json:"predictedDeparture,omitempty"`
	DelaySec           *int   `json:"delaySec,omitempty"`
	Relationship       string `json:"relationship"`
	Source             string `json:"source"`
}

type apiTripStatus struct {
	TripID    string              `json:"tripId"`
	RouteID   string              `json:"routeId"`
	Adherence string              `json:"adherence"`
	DelaySec  int                 `json:"delaySec"`
	Canceled  bool                `json:"canceled"`
	Stale     bool                `json:"stale"`
	UpdatedAt string              `json:"updatedAt"`
	Stops     []apiStopCall       `json:"stops"`
	Vehicle   *apiVehiclePosition `json:"vehicle,omitempty"`
}

type apiVehiclePosition struct {
	VehicleID    string   `json:"vehicleId"`
	TripID       string   `json:"tripId,omitempty"`
	Lat          float64  `json:"lat"`
	Lon          float64  `json:"lon"`
	Bearing      *float64 `json:"bearing,omitempty"`
	SpeedMps     *float64 `json:"speedMps,omitempty"`
	StopSequence *int     `json:"stopSequence,omitempty"`
	Timestamp    string   `json:"timestamp"`
	Stale        bool     `json:"stale"`
	Source       string   `json:"source"`
}

type apiArrival struct {
	TripID       string `json:"tripId"`
	RouteID      string `json:"routeId"`
	Headsign     string `json:"headsign,omitempty"`
	StopID       string `json:"stopId"`
	ScheduledSec int    `json:"scheduledSec"`
	Predicted    string `json:"predicted,omitempty"`
	DelaySec     int    `json:"delaySec"`
	Relationship string `json:"relationship"`
	Stale        bool   `json:"stale"`
}

func apiFromTripStatus(v query.TripStatusView) apiTripStatus {
	t := v.TripStatus
	out := apiTripStatus{
		TripID:    t.TripID,
		RouteID:   t.RouteID,
		Adherence: t.Adherence.String(),
		DelaySec:  t.DelaySec,
		Canceled:  t.Canceled,
		Stale:     v.Stale,
		UpdatedAt: t.UpdatedAt.UTC().Format(time.RFC3339),
		Stops:     make([]apiStopCall, 0, len(t.Stops)),
	}
	for _, c := range t.Stops {
		call := apiStopCall{
			Sequence:     c.Sequence,
			StopID:       c.StopID,
			Relationship: c.Relationship.String(),
			Source:       c.SourceID,
		}
		if c.PredictedArrival > 0 {
			call.PredictedArrival = utils.Iso8601FromUnixSeconds(c.PredictedArrival)
		}
		if c.PredictedDeparture > 0 {
			call.PredictedDeparture = utils.Iso8601FromUnixSeconds(c.PredictedDeparture)
		}
		if c.DelaySet {
			d := c.DelaySec
			call.DelaySec = &d
		}
		out.Stops = append(out.Stops, call)
	}
	if t.Vehicle != nil {
		vp := apiFromVehiclePosition(t.Vehicle, v.VehicleStale)
		out.Vehicle = &vp
	}
	return out
}

func apiFromVehiclePosition(p *tracking.VehiclePosition, stale bool) apiVehiclePosition {
	out := apiVehiclePosition{
		VehicleID: p.VehicleID,
		TripID:    p.TripID,
		Lat:       p.Lat,
		Lon:       p.Lon,
		Timestamp: utils.Iso8601FromUnixSeconds(p.Timestamp),
		Stale:     stale,
		Source:    p.SourceID,
	}
	if !math.IsNaN(p.Bearing) {
		b := p.Bearing
		out.Bearing = &b
	}
	if !math.IsNaN(p.Speed) {
		s := p.Speed
		out.SpeedMps = &s
	}
	if p.StopSequence >= 0 {
		seq := p.StopSequence
		out.StopSequence = &seq
	}
	return out
}

func handleTripStatus(svc *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tripID := r.URL.Query().Get("tripId")
		if tripID == "" {
			writeError(w, http.StatusBadRequest, "tripId is required")
			return
		}
		v, err := svc.GetTripStatus(tripID)
		if err != nil {
			if errors.Is(err, query.ErrNotFound) {
				writeError(w, http.StatusNotFound, "trip not tracked: "+tripID)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, apiFromTripStatus(v))
	}
}

func handleTripStatuses(svc *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			views []query.TripStatusView
			err   error
		)
		// No routeId means every tracked trip.
		if routeID := r.URL.Query().Get("routeId"); routeID != "" {
			views, err = svc.ListTripStatuses(routeID)
			if err != nil {
				if errors.Is(err, query.ErrNotFound) {
					writeError(w, http.StatusNotFound, "unknown route: "+routeID)
					return
				}
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		} else {
			views = svc.ListAllTripStatuses()
		}
		out := make([]apiTripStatus, 0, len(views))
		for _, v := range views {
			out = append(out, apiFromTripStatus(v))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleVehiclePosition(svc *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vehicleID := r.URL.Query().Get("vehicleId")
		if vehicleID == "" {
			writeError(w, http.StatusBadRequest, "vehicleId is required")
			return
		}
		v, err := svc.GetVehiclePosition(vehicleID)
		if err != nil {
			if errors.Is(err, query.ErrNotFound) {
				writeError(w, http.StatusNotFound, "vehicle not tracked: "+vehicleID)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, apiFromVehiclePosition(v.VehiclePosition, v.Stale))
	}
}

func handleNextArrivals(svc *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		stopID := q.Get("stopId")
		stopName := q.Get("stopName")
		if stopID == "" && stopName == "" {
			writeError(w, http.StatusBadRequest, "stopId or stopName is required")
			return
		}
		perRoute := 3
		if raw := q.Get("perRoute"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "perRoute must be a positive integer")
				return
			}
			perRoute = n
		}

		var (
			arrivals []query.Arrival
			err      error
		)
		if stopID != "" {
			arrivals, err = svc.NextArrivals(stopID, perRoute, time.Now())
		} else {
			arrivals, err = svc.NextArrivalsByName(stopName, perRoute, time.Now())
		}
		if err != nil {
			if errors.Is(err, query.ErrNotFound) {
				writeError(w, http.StatusNotFound, "unknown stop")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]apiArrival, 0, len(arrivals))
		for _, a := range arrivals {
			item := apiArrival{
				TripID:       a.TripID,
				RouteID:      a.RouteID,
				Headsign:     a.Headsign,
				StopID:       a.StopID,
				ScheduledSec: a.Scheduled,
				DelaySec:     a.DelaySec,
				Relationship: a.Relationship.String(),
				Stale:        a.Stale,
			}
			if a.Predicted > 0 {
				item.Predicted = utils.Iso8601FromUnixSeconds(a.Predicted)
			}
			out = append(out, item)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleAlerts(svc *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerts := svc.ListAlerts()
		out := make([]apiAlert, 0, len(alerts))
		for _, a := range alerts {
			out = append(out, apiAlert{
				ID:          a.ID,
				Header:      a.Header,
				Description: a.Description,
				Cause:       a.Cause,
				Effect:      a.Effect,
				Severity:    a.Severity,
				Start:       a.Start,
				End:         a.End,
				RouteIDs:    a.RouteIDs,
				TripIDs:     a.TripIDs,
				StopIDs:     a.StopIDs,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type apiAlert struct {
	ID          string   `json:"id"`
	Header      string   `json:"header,omitempty"`
	Description string   `json:"description,omitempty"`
	Cause       string   `json:"cause,omitempty"`
	Effect      string   `json:"effect,omitempty"`
	Severity    string   `json:"severity,omitempty"`
	Start       int64    `json:"start,omitempty"`
	End         int64    `json:"end,omitempty"`
	RouteIDs    []string `json:"routeIds,omitempty"`
	TripIDs     []string `json:"tripIds,omitempty"`
	StopIDs     []string `json:"stopIds,omitempty"`
}
