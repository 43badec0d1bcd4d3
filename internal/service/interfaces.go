package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"gitcord/internal/domain"
)

// FeedStore is the slice of the persistent store the poll cycle needs.
type FeedStore interface {
	List(ctx context.Context) ([]domain.Feed, error)
	AdvanceCursor(ctx context.Context, subject string, cursor int64, etag string) error
}

// Source fetches recent activity for a subject, newest first.
type Source interface {
	Fetch(ctx context.Context, subject string, cursor *int64, etag string) (*domain.FetchResult, error)
}

// Deliverer posts a rendered message to its destination channel.
type Deliverer interface {
	Send(ctx context.Context, msg *domain.RenderedMessage) error
}

// EventPublisher mirrors delivered events onto the bus.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, ev *domain.Event, msg *domain.RenderedMessage) error
	Close() error
}
