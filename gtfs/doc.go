/*
Package gtfs provides the static schedule graph: routes, trips, stops and
scheduled stop times loaded once from a GTFS bundle.

This package is data-source agnostic - it accepts raw zip bytes or already
parsed records and builds an in-memory graph. It does NOT handle HTTP
downloads; fetch the bundle yourself and hand the bytes over.

# Basic Usage

	zipBytes := fetchGTFSFromYourSource()

	graph, err := gtfs.NewScheduleGraphFromZip(zipBytes, "DART")
	if err != nil {
	    log.Fatal(err)
	}

	trip, ok := graph.Trip("trip_123")
	stop, ok := graph.Stop("stop_456")

# Immutability

⚠️ IMPORTANT: build the graph once at startup and share it read-only.
Every component of the tracker (decoder, reconciler, query layer) reads the
same graph concurrently without locking; a schedule refresh must build a new
graph and swap it wholesale, never mutate an existing one.

# Validation

NewScheduleGraph enforces the structural invariants the rest of the engine
relies on:

- every trip references a known route
- every stop time references a known stop
- stop sequence numbers within a trip are strictly increasing

A bundle that violates any of these fails construction; the tracker treats
that as startup-fatal.
*/
package gtfs
