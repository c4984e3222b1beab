package transport

import "context"

// Update is one normalized inbound signal from the chat platform.
// The core never sees platform SDK types.
type Update struct {
	Message *Message
}

// Message is a normalized chat message.
type Message struct {
	ID         string
	ChannelID  string
	GuildID    string
	AuthorID   string
	AuthorName string
	Text       string
	// Mentions holds mentioned user ids, in message order.
	Mentions []string
	// AuthorIsAdmin is resolved by the adapter from guild permissions.
	AuthorIsAdmin bool
}

// MessageRef identifies a message the bot has posted, so it can later be
// fetched and replaced.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Messenger is the outbound surface the core uses. All three calls are
// best-effort from the core's point of view: failures are logged by callers,
// never treated as fatal.
type Messenger interface {
	Send(ctx context.Context, channelID, content string) (MessageRef, error)
	// Fetch returns (nil, nil) when the referenced message no longer exists.
	Fetch(ctx context.Context, ref MessageRef) (*Message, error)
	Delete(ctx context.Context, ref MessageRef) error
}

// Adapter is the platform connection lifecycle plus the outbound surface.
type Adapter interface {
	Messenger

	// Start connects and begins forwarding normalized updates to out.
	// It does not block beyond connection setup.
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
