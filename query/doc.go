// Package query is the read-only interface over the tracker's snapshots.
//
// Every operation pins a single snapshot at call start, so a multi-step
// query never observes two different versions. Stale data is returned with
// a stale flag rather than hidden; a consumer can render "last updated N
// minutes ago" instead of a blank display.
package query
