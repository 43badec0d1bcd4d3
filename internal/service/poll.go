package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gitcord/internal/classify"
	"gitcord/internal/domain"
	"gitcord/internal/render"
)

// PollService runs the poll cycle of a single feed: fetch, filter against
// the stored cursor, classify, render, dispatch in order, commit the
// cursor. Feeds are independent; the scheduler decides which feeds run
// and when.
type PollService struct {
	source    Source
	store     FeedStore
	deliverer Deliverer
	bus       EventPublisher
	logger    *slog.Logger
}

func NewPollService(
	source Source,
	store FeedStore,
	deliverer Deliverer,
	bus EventPublisher,
	logger *slog.Logger,
) *PollService {
	return &PollService{
		source:    source,
		store:     store,
		deliverer: deliverer,
		bus:       bus,
		logger:    logger.With("component", "poll"),
	}
}

type pendingItem struct {
	id  int64
	raw domain.RawEvent
}

// SyncFeed runs one poll cycle for one feed. The returned error wraps a
// domain sentinel for the caller to dispatch on; the cursor has already
// been persisted for every item that resolved before the failure.
func (s *PollService) SyncFeed(ctx context.Context, feed *domain.Feed) (*domain.CycleStats, error) {
	start := time.Now()
	logger := s.logger.With("subject", feed.Subject)
	stats := &domain.CycleStats{Subject: feed.Subject}

	prevETag := ""
	if feed.ETag != nil {
		prevETag = *feed.ETag
	}

	res, err := s.source.Fetch(ctx, feed.Subject, feed.Cursor, prevETag)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	stats.PollInterval = res.PollInterval

	if res.NotModified {
		logger.Debug("feed not modified")
		stats.Duration = time.Since(start)
		return stats, nil
	}

	stats.Fetched = len(res.Events)

	// First observation of a feed: record the newest visible event and
	// deliver nothing, so a fresh feed does not flood its channel.
	if feed.Cursor == nil {
		newest := newestID(res.Events)
		if err := s.commitCursor(ctx, feed.Subject, newest, res.ETag); err != nil {
			return stats, fmt.Errorf("initialize cursor: %w", err)
		}
		logger.Info("feed initialized", "cursor", newest, "skipped", len(res.Events))
		stats.Duration = time.Since(start)
		return stats, nil
	}

	cursor := *feed.Cursor
	pending := s.filterNewer(res.Events, cursor, logger)
	stats.New = len(pending)

	if len(pending) == 0 {
		if err := s.commitCursor(ctx, feed.Subject, cursor, res.ETag); err != nil {
			return stats, fmt.Errorf("store etag: %w", err)
		}
		stats.Duration = time.Since(start)
		return stats, nil
	}

	// Oldest first, so delivery preserves chronological order in the
	// channel.
	sort.Slice(pending, func(i, j int) bool { return pending[i].id < pending[j].id })

	resolved := cursor
	var haltErr error
	for i := range pending {
		if err := ctx.Err(); err != nil {
			haltErr = err
			break
		}
		if err := s.dispatchItem(ctx, feed, &pending[i].raw, stats, logger); err != nil {
			haltErr = err
			break
		}
		resolved = pending[i].id
	}

	// A halted cycle keeps the previous ETag: storing the new one would
	// make the next conditional poll skip the items still owed.
	etag := res.ETag
	if haltErr != nil {
		stats.Halted = true
		etag = prevETag
	}

	if err := s.commitCursor(ctx, feed.Subject, resolved, etag); err != nil {
		return stats, fmt.Errorf("advance cursor: %w", err)
	}

	stats.Duration = time.Since(start)
	logger.Info("cycle completed",
		"fetched", stats.Fetched,
		"new", stats.New,
		"delivered", stats.Delivered,
		"unhandled", stats.Unhandled,
		"rejected", stats.Rejected,
		"published", stats.Published,
		"halted", stats.Halted,
		"duration", stats.Duration,
	)

	if haltErr != nil {
		return stats, fmt.Errorf("dispatch halted at cursor %d: %w", resolved, haltErr)
	}
	return stats, nil
}

// dispatchItem resolves one item: deliver it, skip it as unhandled, or
// skip it as permanently rejected. A non-nil error means the item did not
// resolve and the cycle must halt before it.
func (s *PollService) dispatchItem(ctx context.Context, feed *domain.Feed, raw *domain.RawEvent, stats *domain.CycleStats, logger *slog.Logger) error {
	ev, err := classify.Event(raw)
	if err != nil {
		// filterNewer already parsed the ID; unreachable in practice.
		logger.Warn("unclassifiable event skipped", "id", raw.ID, "error", err)
		return nil
	}

	if ev.IsUnhandled() {
		up := ev.Payload.(domain.UnhandledPayload)
		logger.Info("unhandled event skipped",
			"event_id", ev.ID,
			"event_type", up.EventType,
			"reason", up.Reason,
		)
		stats.Unhandled++
		return nil
	}

	msg := render.Message(ev, feed.ChannelID)

	err = s.deliverer.Send(ctx, &msg)
	switch {
	case err == nil:
		stats.Delivered++
		s.publish(ctx, feed.Subject, ev, &msg, stats, logger)
		return nil
	case errors.Is(err, domain.ErrDeliveryRejected):
		// Permanently broken destination; skipping keeps the feed from
		// wedging on it forever.
		logger.Error("delivery rejected, event dropped",
			"event_id", ev.ID,
			"channel_id", feed.ChannelID,
			"error", err,
		)
		stats.Rejected++
		return nil
	default:
		return err
	}
}

// commitCursor persists the cursor and ETag on a context detached from
// the cycle's deadline: progress made before the deadline expired must
// still reach the store.
func (s *PollService) commitCursor(ctx context.Context, subject string, cursor int64, etag string) error {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return s.store.AdvanceCursor(commitCtx, subject, cursor, etag)
}

func (s *PollService) publish(ctx context.Context, subject string, ev *domain.Event, msg *domain.RenderedMessage, stats *domain.CycleStats, logger *slog.Logger) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, subject, ev, msg); err != nil {
		logger.Warn("bus publish failed", "event_id", ev.ID, "error", err)
		return
	}
	stats.Published++
}

func (s *PollService) filterNewer(events []domain.RawEvent, cursor int64, logger *slog.Logger) []pendingItem {
	pending := make([]pendingItem, 0, len(events))
	for _, raw := range events {
		id, err := raw.NumericID()
		if err != nil {
			logger.Warn("event with unparseable id skipped", "id", raw.ID)
			continue
		}
		// Not strictly newer means already seen: the host re-serves
		// overlapping pages and occasionally duplicates items.
		if id > cursor {
			pending = append(pending, pendingItem{id: id, raw: raw})
		}
	}
	return pending
}

func newestID(events []domain.RawEvent) int64 {
	var newest int64
	for i := range events {
		id, err := events[i].NumericID()
		if err != nil {
			continue
		}
		if id > newest {
			newest = id
		}
	}
	return newest
}
