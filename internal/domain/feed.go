package domain

import (
	"strings"
	"time"
)

// Feed is a tracked GitHub subject paired with the Discord channel its
// activity is relayed to.
type Feed struct {
	// Subject is either a repo slug ("owner/name") or a bare username.
	Subject string `db:"subject"`
	// ChannelID is the Discord channel snowflake to post to.
	ChannelID int64 `db:"channel_id"`
	// Cursor is the ID of the newest event already processed. Nil means
	// the feed has never been polled: the first poll records the newest
	// visible event without delivering anything.
	Cursor *int64 `db:"cursor"`
	// ETag of the last event page, for conditional polling.
	ETag      *string   `db:"etag"`
	CreatedAt time.Time `db:"created_at"`
}

// IsRepo reports whether the subject is a repository slug rather than a
// username.
func (f *Feed) IsRepo() bool {
	return strings.Contains(f.Subject, "/")
}
