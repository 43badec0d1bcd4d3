package domain

import "errors"

var (
	// ErrSourceUnavailable marks a transient GitHub failure (network,
	// 5xx). The feed is retried with backoff at the next tick.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceRejected marks a permanent GitHub failure (4xx: bad
	// credentials, subject renamed or deleted). The cycle is skipped and
	// the feed left in place for the operator to inspect.
	ErrSourceRejected = errors.New("source rejected request")

	// ErrDeliveryUnavailable marks a transient Discord failure. Retried
	// within the cycle; if retries are exhausted the cycle halts and the
	// item is reattempted next tick.
	ErrDeliveryUnavailable = errors.New("delivery unavailable")
	// ErrDeliveryRejected marks a permanent Discord failure (e.g. the
	// channel was deleted). The event is logged, skipped, and counts as
	// resolved so a broken destination cannot wedge the feed.
	ErrDeliveryRejected = errors.New("delivery rejected")

	// ErrDuplicateFeed is returned by Add when the subject is already
	// tracked.
	ErrDuplicateFeed = errors.New("feed already exists")
	// ErrFeedNotFound is returned by Remove when the subject is not
	// tracked.
	ErrFeedNotFound = errors.New("feed not found")
)
