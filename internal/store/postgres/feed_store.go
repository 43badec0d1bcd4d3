package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"gitcord/internal/domain"
)

// FeedStore persists tracked feeds. Every operation is a single
// statement, so add/remove/advance are atomic per subject without any
// cross-feed serialization.
type FeedStore struct {
	db *sqlx.DB
}

func NewFeedStore(db *sqlx.DB) *FeedStore {
	return &FeedStore{db: db}
}

// List returns all tracked feeds, oldest first.
func (s *FeedStore) List(ctx context.Context) ([]domain.Feed, error) {
	var feeds []domain.Feed
	query := `
		SELECT subject, channel_id, cursor, etag, created_at
		FROM feeds
		ORDER BY created_at, subject`

	if err := s.db.SelectContext(ctx, &feeds, query); err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	return feeds, nil
}

// Get returns one feed by subject.
func (s *FeedStore) Get(ctx context.Context, subject string) (*domain.Feed, error) {
	var feed domain.Feed
	query := `
		SELECT subject, channel_id, cursor, etag, created_at
		FROM feeds
		WHERE subject = $1`

	err := s.db.GetContext(ctx, &feed, query, subject)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", subject, domain.ErrFeedNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", subject, err)
	}
	return &feed, nil
}

// Add inserts a new feed with no cursor (never polled).
func (s *FeedStore) Add(ctx context.Context, feed *domain.Feed) error {
	query := `
		INSERT INTO feeds (subject, channel_id)
		VALUES ($1, $2)`

	_, err := s.db.ExecContext(ctx, query, feed.Subject, feed.ChannelID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return fmt.Errorf("add %s: %w", feed.Subject, domain.ErrDuplicateFeed)
	}
	if err != nil {
		return fmt.Errorf("add %s: %w", feed.Subject, err)
	}
	return nil
}

// Remove deletes a feed by subject.
func (s *FeedStore) Remove(ctx context.Context, subject string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM feeds WHERE subject = $1`, subject)
	if err != nil {
		return fmt.Errorf("remove %s: %w", subject, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove %s: %w", subject, err)
	}
	if n == 0 {
		return fmt.Errorf("remove %s: %w", subject, domain.ErrFeedNotFound)
	}
	return nil
}

// AdvanceCursor persists the delivery cursor and ETag for a feed. The
// cursor never moves backwards: a stale writer loses against a newer
// cursor already on disk.
func (s *FeedStore) AdvanceCursor(ctx context.Context, subject string, cursor int64, etag string) error {
	query := `
		UPDATE feeds
		SET cursor = GREATEST(COALESCE(cursor, 0), $2),
		    etag = NULLIF($3, '')
		WHERE subject = $1`

	res, err := s.db.ExecContext(ctx, query, subject, cursor, etag)
	if err != nil {
		return fmt.Errorf("advance cursor for %s: %w", subject, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance cursor for %s: %w", subject, err)
	}
	if n == 0 {
		// Feed was unfollowed mid-cycle; nothing to advance.
		return fmt.Errorf("advance cursor for %s: %w", subject, domain.ErrFeedNotFound)
	}
	return nil
}
