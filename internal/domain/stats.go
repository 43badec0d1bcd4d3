package domain

import "time"

// CycleStats holds statistics about one poll cycle of one feed.
type CycleStats struct {
	Subject   string
	Fetched   int
	New       int
	Delivered int
	Unhandled int
	Rejected  int
	Published int
	Halted    bool
	// PollInterval echoes the host's X-Poll-Interval for this cycle, in
	// seconds, so the scheduler can gate the next poll of this feed.
	PollInterval int
	Duration     time.Duration
}
