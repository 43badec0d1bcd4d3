package domain

// FetchResult is the outcome of one events-feed poll.
type FetchResult struct {
	// Events as returned by the host, newest first.
	Events []RawEvent
	// ETag of the event page, persisted for the next conditional poll.
	ETag string
	// NotModified is true when the host answered 304 for the supplied
	// ETag; Events is empty in that case.
	NotModified bool
	// PollInterval is the host-advertised minimum number of seconds
	// before this feed may be polled again. Zero when not advertised.
	PollInterval int
}
