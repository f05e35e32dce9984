package fetch

import "sync/atomic"

// Fetch-layer counters.
var (
	requestsTotal     atomic.Int64
	retriesTotal      atomic.Int64
	revalidatedTotal  atomic.Int64
	dedupeSharedTotal atomic.Int64
)

// Stats is a point-in-time snapshot of the fetch counters.
type Stats struct {
	Requests     int64 `json:"requests"`
	Retries      int64 `json:"retries"`
	Revalidated  int64 `json:"revalidated"`
	DedupeShared int64 `json:"dedupe_shared"`
}

// Snapshot returns the current counter values.
func Snapshot() Stats {
	return Stats{
		Requests:     requestsTotal.Load(),
		Retries:      retriesTotal.Load(),
		Revalidated:  revalidatedTotal.Load(),
		DedupeShared: dedupeSharedTotal.Load(),
	}
}
