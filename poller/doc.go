// Package poller fetches raw GTFS-RT payloads from configured feed sources.
//
// Each source runs on its own ticker in its own goroutine, with a per-attempt
// timeout and bounded retries with backoff. Successful fetches and exhausted
// failures are both emitted as Results on a single channel; the poller holds
// no transit state and a failed cycle never affects future cycles or other
// sources.
package poller
