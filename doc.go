// Package tracker assembles the realtime train tracking pipeline: a poller
// per feed source, protobuf decoding and validation against the static
// schedule graph, a single-writer reconciliation loop producing versioned
// immutable snapshots, and an HTTP query surface over the current snapshot.
package tracker
