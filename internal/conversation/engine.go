package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"clanbot/internal/transport"
	logx "clanbot/pkg/logx"
)

// ExitToken cancels a conversation from any non-terminal state.
const ExitToken = ".exit"

// CancelledReply is the fixed final reply sent on explicit cancellation.
const CancelledReply = "Conversation cancelled."

// ErrConflict is returned by Start when the (channel, author) pair already
// has a live conversation.
var ErrConflict = errors.New("a conversation is already in progress")

// Conversation is the capability set each command dialogue implements.
// Implementations embed Base for State/FinalReply bookkeeping.
type Conversation interface {
	// Init inspects the originating message and inline parameters. It may
	// short-circuit straight to StateConfirm (parameters fully specify the
	// action) or even StateDone (nothing to ask, or validation refused).
	Init(ctx context.Context, msg *transport.Message) error
	// ProduceQuestion returns the prompt for the current state, or "" at
	// StateDone.
	ProduceQuestion() string
	// ConsumeAnswer validates one reply and advances the state. Invalid
	// input moves to the error variant of the same question.
	ConsumeAnswer(ctx context.Context, answer string) error
	State() State
	// FinalReply is valid once State() is StateDone.
	FinalReply() string
}

type convKey struct {
	channelID string
	authorID  string
}

type liveConv struct {
	conv     Conversation
	lastSeen time.Time
}

// Engine owns the registry of live conversations, keyed by
// (channelID, authorID), with single-writer discipline per key.
type Engine struct {
	messenger transport.Messenger
	log       logx.Logger
	ttl       time.Duration
	now       func() time.Time

	mu     sync.Mutex
	active map[convKey]*liveConv
}

func NewEngine(m transport.Messenger, ttl time.Duration, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Engine{
		messenger: m,
		log:       log,
		ttl:       ttl,
		now:       time.Now,
		active:    make(map[convKey]*liveConv),
	}
}

// Start registers a conversation for the message's (channel, author) pair
// and sends its first prompt. A second Start for a live pair returns
// ErrConflict without touching the existing conversation.
func (e *Engine) Start(ctx context.Context, msg *transport.Message, c Conversation) error {
	key := convKey{channelID: msg.ChannelID, authorID: msg.AuthorID}

	e.mu.Lock()
	if _, ok := e.active[key]; ok {
		e.mu.Unlock()
		return ErrConflict
	}
	e.active[key] = &liveConv{conv: c, lastSeen: e.now()}
	e.mu.Unlock()

	if err := c.Init(ctx, msg); err != nil {
		e.remove(key)
		return err
	}
	if c.State().Terminal() {
		e.finish(ctx, key, c)
		return nil
	}
	e.reply(ctx, key.channelID, c.ProduceQuestion())
	return nil
}

// HandleMessage routes a message to the author's live conversation in that
// channel, if any. It reports whether the message was consumed; false means
// the caller should dispatch it as a normal command.
func (e *Engine) HandleMessage(ctx context.Context, msg *transport.Message) bool {
	key := convKey{channelID: msg.ChannelID, authorID: msg.AuthorID}

	e.mu.Lock()
	lc, ok := e.active[key]
	if !ok {
		e.mu.Unlock()
		return false
	}
	lc.lastSeen = e.now()
	e.mu.Unlock()

	if strings.EqualFold(strings.TrimSpace(msg.Text), ExitToken) {
		e.remove(key)
		e.reply(ctx, key.channelID, CancelledReply)
		return true
	}

	if err := lc.conv.ConsumeAnswer(ctx, msg.Text); err != nil {
		// Unexpected collaborator failure mid-conversation: surface it and
		// force the conversation closed.
		e.log.Error("conversation failed", logx.Err(err),
			logx.String("channel", key.channelID), logx.String("author", key.authorID))
		e.remove(key)
		e.reply(ctx, key.channelID, "Something went wrong, please try again.")
		return true
	}

	if lc.conv.State().Terminal() {
		e.finish(ctx, key, lc.conv)
		return true
	}
	e.reply(ctx, key.channelID, lc.conv.ProduceQuestion())
	return true
}

// ActiveCount returns the number of live conversations.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Sweep drops conversations idle longer than the TTL. Expiry is silent:
// no cancellation reply is sent, the registration is simply removed.
func (e *Engine) Sweep() int {
	cutoff := e.now().Add(-e.ttl)

	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for key, lc := range e.active {
		if lc.lastSeen.Before(cutoff) {
			delete(e.active, key)
			removed++
			e.log.Debug("conversation expired",
				logx.String("channel", key.channelID), logx.String("author", key.authorID))
		}
	}
	return removed
}

// Run sweeps expired conversations until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			e.Sweep()
		}
	}
}

// finish removes the registration and emits the single final reply.
func (e *Engine) finish(ctx context.Context, key convKey, c Conversation) {
	e.remove(key)
	e.reply(ctx, key.channelID, c.FinalReply())
}

func (e *Engine) remove(key convKey) {
	e.mu.Lock()
	delete(e.active, key)
	e.mu.Unlock()
}

func (e *Engine) reply(ctx context.Context, channelID, text string) {
	if text == "" {
		return
	}
	if _, err := e.messenger.Send(ctx, channelID, text); err != nil {
		e.log.Warn("conversation reply failed", logx.Err(err), logx.String("channel", channelID))
	}
}
