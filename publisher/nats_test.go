package publisher

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSubjectToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "RED", want: "RED"},
		{in: "Red Line", want: "Red_Line"},
		{in: "a.b>c*d/e", want: "a_b_c_d_e"},
		{in: "  padded  ", want: "padded"},
		{in: "", want: "_"},
	}
	for _, tt := range tests {
		if got := subjectToken(tt.in); got != tt.want {
			t.Errorf("subjectToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTripStatusMessageJSON(t *testing.T) {
	msg := TripStatusMessage{
		TripID:    "T1",
		RouteID:   "RED",
		Adherence: "DELAYED",
		DelaySec:  180,
		UpdatedAt: time.Unix(100000, 0).UTC(),
		Version:   7,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round map[string]any
	if err := json.Unmarshal(b, &round); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if round["tripId"] != "T1" || round["adherence"] != "DELAYED" {
		t.Errorf("payload = %s", b)
	}
	if round["snapshotVersion"].(float64) != 7 {
		t.Errorf("version field = %v", round["snapshotVersion"])
	}
}

func TestPositionMessageJSON_OmitsUnknowns(t *testing.T) {
	msg := PositionMessage{VehicleID: "V1", Lat: 1, Lon: 2, Timestamp: 100000}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round map[string]any
	if err := json.Unmarshal(b, &round); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, absent := range []string{"tripId", "routeId", "bearing", "speedMps"} {
		if _, ok := round[absent]; ok {
			t.Errorf("unset field %q serialized: %s", absent, b)
		}
	}
}
