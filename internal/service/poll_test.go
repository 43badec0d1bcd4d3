package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gitcord/internal/domain"
	"gitcord/internal/service/mocks"
)

type PollServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source    *mocks.MockSource
	store     *mocks.MockFeedStore
	deliverer *mocks.MockDeliverer
	bus       *mocks.MockEventPublisher

	service *PollService
	logger  *slog.Logger
}

func (s *PollServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.source = mocks.NewMockSource(s.ctrl)
	s.store = mocks.NewMockFeedStore(s.ctrl)
	s.deliverer = mocks.NewMockDeliverer(s.ctrl)
	s.bus = mocks.NewMockEventPublisher(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewPollService(s.source, s.store, s.deliverer, nil, s.logger)
}

func (s *PollServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestPollServiceTestSuite(t *testing.T) {
	suite.Run(t, new(PollServiceTestSuite))
}

func watchEvent(id int64) domain.RawEvent {
	return domain.RawEvent{
		ID:        strconv.FormatInt(id, 10),
		Type:      "WatchEvent",
		Actor:     domain.RawActor{Login: "octocat"},
		Repo:      domain.RawRepo{Name: "octo/hello"},
		Payload:   json.RawMessage(`{"action":"started"}`),
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func feedAt(cursor int64, etag string) *domain.Feed {
	return &domain.Feed{
		Subject:   "octo/hello",
		ChannelID: 42,
		Cursor:    &cursor,
		ETag:      &etag,
	}
}

func (s *PollServiceTestSuite) TestSyncFeed_FirstPollRecordsNewestWithoutDelivering() {
	ctx := context.Background()
	feed := &domain.Feed{Subject: "octo/hello", ChannelID: 42}

	s.source.EXPECT().Fetch(ctx, "octo/hello", nil, "").Return(&domain.FetchResult{
		Events: []domain.RawEvent{watchEvent(7), watchEvent(10), watchEvent(9)},
		ETag:   `"fresh"`,
	}, nil)

	// Cursor commits run on a detached context, so match any.
	s.store.EXPECT().AdvanceCursor(gomock.Any(), "octo/hello", int64(10), `"fresh"`).Return(nil)

	stats, err := s.service.SyncFeed(ctx, feed)

	s.NoError(err)
	s.Equal(3, stats.Fetched)
	s.Equal(0, stats.Delivered)
}

func (s *PollServiceTestSuite) TestSyncFeed_DeliversNewItemsOldestFirst() {
	ctx := context.Background()
	feed := feedAt(2, `"old"`)

	// The host serves newest first; delivery must invert that.
	s.source.EXPECT().Fetch(ctx, "octo/hello", feed.Cursor, `"old"`).Return(&domain.FetchResult{
		Events: []domain.RawEvent{watchEvent(5), watchEvent(4), watchEvent(3)},
		ETag:   `"new"`,
	}, nil)

	var sent []int64
	s.deliverer.EXPECT().Send(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, msg *domain.RenderedMessage) error {
			s.Equal(int64(42), msg.ChannelID)
			sent = append(sent, msg.EventID)
			return nil
		},
	).Times(3)

	s.store.EXPECT().AdvanceCursor(gomock.Any(), "octo/hello", int64(5), `"new"`).Return(nil)

	stats, err := s.service.SyncFeed(ctx, feed)

	s.NoError(err)
	s.Equal([]int64{3, 4, 5}, sent)
	s.Equal(3, stats.New)
	s.Equal(3, stats.Delivered)
	s.False(stats.Halted)
}

func (s *PollServiceTestSuite) TestSyncFeed_NotModifiedIsANoOp() {
	ctx := context.Background()
	feed := feedAt(5, `"tag"`)

	s.source.EXPECT().Fetch(ctx, "octo/hello", feed.Cursor, `"tag"`).Return(&domain.FetchResult{
		NotModified:  true,
		ETag:         `"tag"`,
		PollInterval: 60,
	}, nil)

	stats, err := s.service.SyncFeed(ctx, feed)

	s.NoError(err)
	s.Equal(0, stats.Fetched)
	s.Equal(60, stats.PollInterval)
}

func (s *PollServiceTestSuite) TestSyncFeed_NothingNewStoresETagOnly() {
	ctx := context.Background()
	feed := feedAt(10, `"old"`)

	s.source.EXPECT().Fetch(ctx, "octo/hello", feed.Cursor, `"old"`).Return(&domain.FetchResult{
		Events: []domain.RawEvent{watchEvent(10), watchEvent(9)},
		ETag:   `"new"`,
	}, nil)

	s.store.EXPECT().AdvanceCursor(gomock.Any(), "octo/hello", int64(10), `"new"`).Return(nil)

	stats, err := s.service.SyncFeed(ctx, feed)

	s.NoError(err)
	s.Equal(2, stats.Fetched)
	s.Equal(0, stats.New)
	s.Equal(0, stats.Delivered)
}

func (s *PollServiceTestSuite) TestSyncFeed_UnknownEventTypeResolvesWithoutDelivery() {
	ctx := context.Background()
	feed := feedAt(2, "")

	unknown := domain.RawEvent{
		ID:      "4",
		Type:    "SponsorshipEvent",
		Actor:   domain.RawActor{Login: "octocat"},
		Repo:    domain.RawRepo{Name: "octo/hello"},
		Payload: json.RawMessage(`{}`),
	}

	s.source.EXPECT().Fetch(ctx, "octo/hello", feed.Cursor, "").Return(&domain.FetchResult{
		Events: []domain.RawEvent{watchEvent(5), unknown, watchEvent(3)},
		ETag:   `"new"`,
	}, nil)

	s.deliverer.EXPECT().Send(ctx, gomock.Any()).Return(nil).Times(2)
	s.store.EXPECT().AdvanceCursor(gomock.Any(), "octo/hello", int64(5), `"new"`).Return(nil)

	stats, err := s.service.SyncFeed(ctx, feed)

	s.NoError(err)
	s.Equal(2, stats.Delivered)
	s.Equal(1, stats.Unhandled)
}

func (s *PollServiceTestSuite) TestSyncFeed_MalformedPayloadDoesNotWedgeTheFeed() {
	ctx := context.Background()
	feed := feedAt(2, "")

	malformed := domain.RawEvent{
		ID:      "4",
		Type:    "PushEvent",
		Actor:   domain.RawActor{Login: "octocat"},
		Repo:    domain.RawRepo{Name: "octo/hello"},
		Payload: json.RawMessage(`{"ref": 12}`),
	}

	s.source.EXPECT().Fetch(ctx, "octo/hello", feed.Cursor, "").Return(&domain.FetchResult{
		Events: []domain.RawEvent{watchEvent(5), malformed, watchEvent(3)},
		ETag:   `"new"`,
	}, nil)

	s.deliverer.EXPECT().Send(ctx, gomock.Any()).Return(nil).Times(2)
	s.store.EXPECT().AdvanceCursor(gomock.Any(), "octo/hello", int64(5), `"new"`).Return(nil)

	stats, err := s.service.SyncFeed(ctx, feed)

	s.NoError(err)
	s.Equal(2, stats.Delivered)
	s.Equal(1, stats.Unhandled)
}

func (s *PollServiceTestSuite) TestSyncFeed_RejectedDeliveryResolvesAndContinues() {
	ctx := context.Background()
	feed := feedAt(0, "")

	s.source.EXPECT().Fetch(ctx, "octo/hello", feed.Cursor, "").Return(&domain.FetchResult{
		Events: []domain.RawEvent{watchEvent(3), watchEvent(2), watchEvent(1)},
		ETag:   `"new"`,
	}, nil)

	var sent []int64
	s.deliverer.EXPECT().Send(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, msg *domain.RenderedMessage) error {
			sent = append(sent, msg.EventID)
			if msg.EventID == 2 {
				return domain.ErrDeliveryRejected
			}
			return nil
		},
	).Times(3)

	s.store.EXPECT().AdvanceCursor(gomock.Any(), "octo/hello", int64(3), `"new"`).Return(nil)

	stats, err := s.service.SyncFeed(ctx, feed)

	s.NoError(err)
	s.Equal([]int64{1, 2, 3}, sent)
	s.Equal(2, stats.Delivered)
	s.Equal(1, stats.Rejected)
	s.False(stats.Halted)
}

func (s *PollServiceTestSuite) TestSyncFeed_TransientDeliveryFailureHaltsBeforeTheItem() {
	ctx := context.Background()
	feed := feedAt(0, `"old"`)

	s.source.EXPECT().Fetch(ctx, "octo/hello", feed.Cursor, `"old"`).Return(&domain.FetchResult{
		Events: []domain.RawEvent{watchEvent(3), watchEvent(2), watchEvent(1)},
		ETag:   `"new"`,
	}, nil)

	var sent []int64
	s.deliverer.EXPECT().Send(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, msg *domain.RenderedMessage) error {
			sent = append(sent, msg.EventID)
			if msg.EventID == 2 {
				return domain.ErrDeliveryUnavailable
			}
			return nil
		},
	).Times(2)

	// Only item 1 resolved; the old ETag is kept so the next conditional
	// poll re-serves the items still owed.
	s.store.EXPECT().AdvanceCursor(gomock.Any(), "octo/hello", int64(1), `"old"`).Return(nil)

	stats, err := s.service.SyncFeed(ctx, feed)

	s.ErrorIs(err, domain.ErrDeliveryUnavailable)
	s.Equal([]int64{1, 2}, sent)
	s.Equal(1, stats.Delivered)
	s.True(stats.Halted)
}

func (s *PollServiceTestSuite) TestSyncFeed_SourceFailurePropagates() {
	ctx := context.Background()
	feed := feedAt(5, "")

	s.source.EXPECT().Fetch(ctx, "octo/hello", feed.Cursor, "").Return(nil, domain.ErrSourceUnavailable)

	stats, err := s.service.SyncFeed(ctx, feed)

	s.ErrorIs(err, domain.ErrSourceUnavailable)
	s.Nil(stats)
}

func (s *PollServiceTestSuite) TestSyncFeed_DeliveredEventsFanOutToBus() {
	ctx := context.Background()
	feed := feedAt(2, "")

	service := NewPollService(s.source, s.store, s.deliverer, s.bus, s.logger)

	s.source.EXPECT().Fetch(ctx, "octo/hello", feed.Cursor, "").Return(&domain.FetchResult{
		Events: []domain.RawEvent{watchEvent(4), watchEvent(3)},
		ETag:   `"new"`,
	}, nil)

	s.deliverer.EXPECT().Send(ctx, gomock.Any()).Return(nil).Times(2)

	s.bus.EXPECT().Publish(ctx, "octo/hello", gomock.Any(), gomock.Any()).Return(nil)
	// A bus failure is logged and must not fail the cycle.
	s.bus.EXPECT().Publish(ctx, "octo/hello", gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	s.store.EXPECT().AdvanceCursor(gomock.Any(), "octo/hello", int64(4), `"new"`).Return(nil)

	stats, err := service.SyncFeed(ctx, feed)

	s.NoError(err)
	s.Equal(2, stats.Delivered)
	s.Equal(1, stats.Published)
}
