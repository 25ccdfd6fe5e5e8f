package tracker

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfsrt"
	"github.com/theoremus-urban-solutions/transit-tracker/query"
	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
)

func testService(t *testing.T) (*query.Service, *Engine) {
	t.Helper()
	eng, store := testEngine(t)

	now := time.Now()
	rec := tracking.NewReconciler(eng.graph, tracking.Config{OnTimeThreshold: time.Minute})
	snap, _ := rec.Reconcile(store.Current(), tracking.Batch{
		SourceID: "test",
		Priority: 1,
		Entities: []gtfsrt.Entity{
			&gtfsrt.TripUpdate{
				TripID: "T1", RouteID: "RED", Timestamp: now.Unix(),
				StopTimeUpdates: []gtfsrt.StopTimeUpdate{
					{Sequence: 1, StopID: "S1", Arrival: &gtfsrt.TimeEvent{Time: now.Unix() + 120, Delay: 30, DelaySet: true}},
				},
			},
			&gtfsrt.VehiclePosition{VehicleID: "V1", TripID: "T1", Lat: 32.78, Lon: -96.80, Timestamp: now.Unix()},
		},
	}, now)
	if err := store.Publish(snap); err != nil {
		t.Fatalf("publish: %v", err)
	}
	return query.NewService(store, eng.graph, 2*time.Minute), eng
}

func doRequest(t *testing.T, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func TestHandleTripStatus(t *testing.T) {
	svc, _ := testService(t)
	h := handleTripStatus(svc)

	rr := doRequest(t, h, "/api/trip-status?tripId=T1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var got apiTripStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.TripID != "T1" || got.Adherence != "ON_TIME" {
		t.Errorf("response = %+v", got)
	}
	if len(got.Stops) != 1 || got.Stops[0].DelaySec == nil || *got.Stops[0].DelaySec != 30 {
		t.Errorf("stops = %+v", got.Stops)
	}
	if got.Vehicle == nil || got.Vehicle.VehicleID != "V1" {
		t.Errorf("vehicle = %+v", got.Vehicle)
	}

	if rr := doRequest(t, h, "/api/trip-status?tripId=NOPE"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown trip: status = %d", rr.Code)
	}
	if rr := doRequest(t, h, "/api/trip-status"); rr.Code != http.StatusBadRequest {
		t.Errorf("missing param: status = %d", rr.Code)
	}
}

func TestHandleTripStatuses(t *testing.T) {
	svc, _ := testService(t)
	h := handleTripStatuses(svc)

	rr := doRequest(t, h, "/api/trip-statuses?routeId=RED")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got []apiTripStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].TripID != "T1" {
		t.Errorf("response = %+v", got)
	}

	if rr := doRequest(t, h, "/api/trip-statuses?routeId=GREEN"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route: status = %d", rr.Code)
	}

	// Without routeId the listing covers every tracked trip.
	rr = doRequest(t, h, "/api/trip-statuses")
	if rr.Code != http.StatusOK {
		t.Fatalf("all trips: status = %d", rr.Code)
	}
	got = nil
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].TripID != "T1" {
		t.Errorf("all trips = %+v", got)
	}
}

func TestHandleTripStatus_ExpiredVehicleFlaggedStale(t *testing.T) {
	eng, store := testEngine(t)
	now := time.Now()
	rec := tracking.NewReconciler(eng.graph, tracking.Config{
		OnTimeThreshold: time.Minute,
		Expiry:          15 * time.Minute,
	})

	// An hour-old position attaches the vehicle to T1.
	snap, _ := rec.Reconcile(store.Current(), tracking.Batch{
		SourceID: "test",
		Priority: 1,
		Entities: []gtfsrt.Entity{
			&gtfsrt.VehiclePosition{VehicleID: "V1", TripID: "T1", Lat: 32.78, Lon: -96.80, Timestamp: now.Add(-time.Hour).Unix()},
		},
	}, now.Add(-time.Hour))
	if err := store.Publish(snap); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// A fresh trip update an hour later; the vehicle's own record crosses the
	// expiry window and leaves the vehicle map, while the trip still embeds
	// the old position.
	snap, _ = rec.Reconcile(store.Current(), tracking.Batch{
		SourceID: "test",
		Priority: 1,
		Entities: []gtfsrt.Entity{
			&gtfsrt.TripUpdate{
				TripID: "T1", RouteID: "RED", Timestamp: now.Unix(),
				StopTimeUpdates: []gtfsrt.StopTimeUpdate{
					{Sequence: 1, StopID: "S1", Arrival: &gtfsrt.TimeEvent{Time: now.Unix() + 120, Delay: 30, DelaySet: true}},
				},
			},
		},
	}, now)
	if err := store.Publish(snap); err != nil {
		t.Fatalf("publish: %v", err)
	}

	svc := query.NewService(store, eng.graph, 2*time.Minute)
	rr := doRequest(t, handleTripStatus(svc), "/api/trip-status?tripId=T1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var got apiTripStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Stale {
		t.Error("freshly updated trip reported stale")
	}
	if got.Vehicle == nil {
		t.Fatal("embedded vehicle missing")
	}
	if !got.Vehicle.Stale {
		t.Error("hour-old embedded position not flagged stale")
	}
}

func TestHandleVehiclePosition(t *testing.T) {
	svc, _ := testService(t)
	h := handleVehiclePosition(svc)

	rr := doRequest(t, h, "/api/vehicle-position?vehicleId=V1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got apiVehiclePosition
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.VehicleID != "V1" || got.Lat != 32.78 {
		t.Errorf("response = %+v", got)
	}
	if got.Bearing != nil {
		t.Error("absent bearing should be omitted, not NaN")
	}

	if rr := doRequest(t, h, "/api/vehicle-position?vehicleId=V9"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown vehicle: status = %d", rr.Code)
	}
}

func TestHandleNextArrivals(t *testing.T) {
	svc, _ := testService(t)
	h := handleNextArrivals(svc)

	// Whether any arrivals remain depends on the wall clock; the handler
	// contract under test is status codes and response shape.
	rr := doRequest(t, h, "/api/next-arrivals?stopId=S1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var got []apiArrival
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if rr := doRequest(t, h, "/api/next-arrivals?stopId=S9"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown stop: status = %d", rr.Code)
	}
	if rr := doRequest(t, h, "/api/next-arrivals"); rr.Code != http.StatusBadRequest {
		t.Errorf("missing params: status = %d", rr.Code)
	}
	if rr := doRequest(t, h, "/api/next-arrivals?stopId=S1&perRoute=zero"); rr.Code != http.StatusBadRequest {
		t.Errorf("bad perRoute: status = %d", rr.Code)
	}
}

func TestHandleAlerts(t *testing.T) {
	svc, _ := testService(t)
	rr := doRequest(t, handleAlerts(svc), "/api/alerts")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got []apiAlert
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("no alerts were published, got %+v", got)
	}
}

func TestHandleHealth(t *testing.T) {
	svc, eng := testService(t)
	h := handleHealth(svc, eng)

	rr := doRequest(t, h, "/api/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != "ok" || got.SnapshotVersion != 1 {
		t.Errorf("response = %+v", got)
	}
}
