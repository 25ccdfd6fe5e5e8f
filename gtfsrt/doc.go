// Package gtfsrt decodes and validates GTFS-Realtime protobuf payloads.
//
// It supports the three standard feed types:
//   - Trip Updates: real-time arrival/departure predictions per stop
//   - Vehicle Positions: current vehicle locations
//   - Service Alerts: disruptions and service changes
//
// Decode turns raw payload bytes into a flat, ordered list of tagged
// entities; a payload only fails as a whole when the protobuf container is
// unparseable. Validate then resolves entity references against the static
// schedule graph and drops records the engine could never reconcile,
// counting every drop by reason for observability.
package gtfsrt
