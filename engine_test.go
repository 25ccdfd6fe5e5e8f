package tracker

import (
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/theoremus-urban-solutions/transit-tracker/gtfs"
	"github.com/theoremus-urban-solutions/transit-tracker/metrics"
	"github.com/theoremus-urban-solutions/transit-tracker/poller"
	"github.com/theoremus-urban-solutions/transit-tracker/tracking"
)

func testGraph(t *testing.T) *gtfs.ScheduleGraph {
	t.Helper()
	g, err := gtfs.NewScheduleGraph("DART",
		[]gtfs.Route{{ID: "RED", RouteType: 2}},
		[]gtfs.Stop{
			{ID: "S1", Name: "Union Station"},
			{ID: "S2", Name: "Akard"},
		},
		[]gtfs.Trip{{
			ID: "T1", RouteID: "RED", Headsign: "Parker Road",
			StopTimes: []gtfs.StopTime{
				{StopID: "S1", Sequence: 1, Arrival: 28800, Departure: 28800},
				{StopID: "S2", Sequence: 2, Arrival: 29100, Departure: 29100},
			},
		}},
	)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

func testEngine(t *testing.T) (*Engine, *tracking.Store) {
	t.Helper()
	g := testGraph(t)
	store := tracking.NewStore(3)
	rec := tracking.NewReconciler(g, tracking.Config{OnTimeThreshold: time.Minute, Expiry: 15 * time.Minute})
	eng := NewEngine(g, store, rec, poller.New(nil), metrics.NewCollector(), nil, EngineOptions{
		SkewTolerance:      5 * time.Minute,
		StalenessThreshold: 2 * time.Minute,
	})
	return eng, store
}

func feedPayload(t *testing.T, headerTS uint64, entities ...*gtfsrtpb.FeedEntity) []byte {
	t.Helper()
	version := "2.0"
	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: &version,
			Timestamp:           &headerTS,
		},
		Entity: entities,
	}
	b, err := proto.Marshal(fm)
	if err != nil {
		t.Fatalf("marshal feed: %v", err)
	}
	return b
}

func TestEngine_PollResultToSnapshot(t *testing.T) {
	eng, store := testEngine(t)

	tripID := "T1"
	routeID := "RED"
	id := "1"
	seq := uint32(1)
	delay := int32(30)
	ts := uint64(time.Now().Unix())
	payload := feedPayload(t, ts, &gtfsrtpb.FeedEntity{
		Id: &id,
		TripUpdate: &gtfsrtpb.TripUpdate{
			Trip:      &gtfsrtpb.TripDescriptor{TripId: &tripID, RouteId: &routeID},
			Timestamp: &ts,
			StopTimeUpdate: []*gtfsrtpb.TripUpdate_StopTimeUpdate{{
				StopSequence: &seq,
				Arrival:      &gtfsrtpb.TripUpdate_StopTimeEvent{Delay: &delay},
			}},
		},
	})

	eng.handleResult(poller.Result{SourceID: "tu", Priority: 1, Payload: payload, FetchedAt: time.Now()})

	snap := store.Current()
	if snap.Version() != 1 {
		t.Fatalf("version = %d, want 1", snap.Version())
	}
	tr, ok := snap.TripStatus("T1")
	if !ok {
		t.Fatal("trip not tracked after poll result")
	}
	if tr.Adherence != tracking.AdherenceOnTime {
		t.Errorf("adherence = %v", tr.Adherence)
	}
	if eng.LatestFeedEpoch() != int64(ts) {
		t.Errorf("latest feed epoch = %d, want %d", eng.LatestFeedEpoch(), ts)
	}
}

func TestEngine_PollErrorDoesNotPublish(t *testing.T) {
	eng, store := testEngine(t)
	eng.handleResult(poller.Result{SourceID: "tu", Priority: 1, Err: errFake, FetchedAt: time.Now()})
	if store.Current().Version() != 0 {
		t.Error("error result produced a snapshot")
	}
}

func TestEngine_UndecodablePayloadDoesNotPublish(t *testing.T) {
	eng, store := testEngine(t)
	eng.handleResult(poller.Result{SourceID: "tu", Priority: 1, Payload: []byte{}, FetchedAt: time.Now()})
	if store.Current().Version() != 0 {
		t.Error("undecodable payload produced a snapshot")
	}
}

func TestEngine_EmptyFeedStillAdvancesVersion(t *testing.T) {
	// An empty but valid feed is a successful cycle; downstream consumers
	// can tell the tracker is alive from the advancing version.
	eng, store := testEngine(t)
	eng.handleResult(poller.Result{SourceID: "tu", Priority: 1, Payload: feedPayload(t, 1000), FetchedAt: time.Now()})
	if store.Current().Version() != 1 {
		t.Errorf("version = %d, want 1", store.Current().Version())
	}
}

var errFake = errFakeType{}

type errFakeType struct{}

func (errFakeType) Error() string { return "fake poll failure" }
