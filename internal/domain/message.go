package domain

// RenderedMessage is a delivery-ready chat message. EventID identifies the
// source event for logging and idempotency.
type RenderedMessage struct {
	ChannelID int64
	Body      string
	EventID   int64
}
