package tracker

import (
	"encoding/json"
	"net/http"

	"github.com/theoremus-urban-solutions/transit-tracker/query"
)

type healthResponse struct {
	Status                  string `json:"status"`
	SnapshotVersion         uint64 `json:"snapshot_version"`
	LatestGTFSRealtimeEpoch int64  `json:"latest_gtfsrt_epoch"`
}

func handleHealth(svc *query.Service, engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := healthResponse{
			Status:                  "ok",
			SnapshotVersion:         svc.CurrentSnapshotVersion(),
			LatestGTFSRealtimeEpoch: engine.LatestFeedEpoch(),
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
