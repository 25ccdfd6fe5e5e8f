// Package tracking reconciles validated GTFS-RT entities into immutable,
// versioned snapshots of transit state.
//
// This package handles:
//   - Merging per-stop predictions with newest-source-timestamp-wins conflict
//     resolution (source priority, then arrival order, as tie-breaks)
//   - Keeping the latest observed position per vehicle
//   - Deriving each trip's aggregate schedule adherence
//   - Publishing snapshots atomically through the Store, with a bounded
//     history window for diagnostics
//
// The Snapshot type is a point-in-time capture of all tracked trips and
// vehicles. Once published a snapshot is never mutated; reconciliation
// builds the next one by copy-on-write from its predecessor.
package tracking
