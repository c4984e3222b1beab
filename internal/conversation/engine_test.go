package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"clanbot/internal/transport"
	logx "clanbot/pkg/logx"
)

type fakeMessenger struct {
	sent []string
}

func (f *fakeMessenger) Send(ctx context.Context, channelID, content string) (transport.MessageRef, error) {
	f.sent = append(f.sent, content)
	return transport.MessageRef{ChannelID: channelID, MessageID: "m1"}, nil
}

func (f *fakeMessenger) Fetch(ctx context.Context, ref transport.MessageRef) (*transport.Message, error) {
	return nil, nil
}

func (f *fakeMessenger) Delete(ctx context.Context, ref transport.MessageRef) error { return nil }

// countingConv asks one question and finishes when the answer is "yes".
// Any other answer re-asks via the error variant.
type countingConv struct {
	Base
	initErr  error
	consumed int
}

func (c *countingConv) Init(ctx context.Context, msg *transport.Message) error {
	if c.initErr != nil {
		return c.initErr
	}
	c.SetState(StateQ1)
	return nil
}

func (c *countingConv) ProduceQuestion() string {
	switch c.State() {
	case StateQ1:
		return "proceed?"
	case StateQ1Error:
		return "please answer yes"
	default:
		return ""
	}
}

func (c *countingConv) ConsumeAnswer(ctx context.Context, answer string) error {
	c.consumed++
	if answer == "yes" {
		c.Finish("done!")
		return nil
	}
	if answer == "boom" {
		return errors.New("collaborator failure")
	}
	c.SetState(c.State().ErrorVariant())
	return nil
}

func msgFrom(author, channel, text string) *transport.Message {
	return &transport.Message{ID: "1", ChannelID: channel, AuthorID: author, Text: text}
}

func TestStartAsksFirstQuestion(t *testing.T) {
	t.Parallel()
	fm := &fakeMessenger{}
	e := NewEngine(fm, time.Hour, logx.Nop())

	if err := e.Start(context.Background(), msgFrom("u1", "c1", "cmd"), &countingConv{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(fm.sent) != 1 || fm.sent[0] != "proceed?" {
		t.Fatalf("sent %v", fm.sent)
	}
}

func TestStartConflictPerChannelAuthorPair(t *testing.T) {
	t.Parallel()
	fm := &fakeMessenger{}
	e := NewEngine(fm, time.Hour, logx.Nop())
	ctx := context.Background()

	if err := e.Start(ctx, msgFrom("u1", "c1", "cmd"), &countingConv{}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := e.Start(ctx, msgFrom("u1", "c1", "cmd"), &countingConv{}); !errors.Is(err, ErrConflict) {
		t.Fatalf("second Start: %v, want ErrConflict", err)
	}
	// Same author in another channel is independent.
	if err := e.Start(ctx, msgFrom("u1", "c2", "cmd"), &countingConv{}); err != nil {
		t.Fatalf("other channel: %v", err)
	}
}

func TestExitCancelsFromAnyNonTerminalState(t *testing.T) {
	t.Parallel()
	for _, prep := range []struct {
		name    string
		answers []string
	}{
		{name: "fresh", answers: nil},
		{name: "after error", answers: []string{"maybe"}},
		{name: "after two errors", answers: []string{"maybe", "nope"}},
	} {
		t.Run(prep.name, func(t *testing.T) {
			t.Parallel()
			fm := &fakeMessenger{}
			e := NewEngine(fm, time.Hour, logx.Nop())
			ctx := context.Background()

			if err := e.Start(ctx, msgFrom("u1", "c1", "cmd"), &countingConv{}); err != nil {
				t.Fatalf("Start: %v", err)
			}
			for _, a := range prep.answers {
				e.HandleMessage(ctx, msgFrom("u1", "c1", a))
			}
			if !e.HandleMessage(ctx, msgFrom("u1", "c1", " .EXIT ")) {
				t.Fatal("exit message not consumed")
			}
			last := fm.sent[len(fm.sent)-1]
			if last != CancelledReply {
				t.Fatalf("final reply %q", last)
			}
			if e.ActiveCount() != 0 {
				t.Fatal("conversation still registered after exit")
			}
			// The next message dispatches normally again.
			if e.HandleMessage(ctx, msgFrom("u1", "c1", "hello")) {
				t.Fatal("message consumed by dead conversation")
			}
		})
	}
}

func TestInvalidAnswerReasksThenFinishes(t *testing.T) {
	t.Parallel()
	fm := &fakeMessenger{}
	e := NewEngine(fm, time.Hour, logx.Nop())
	ctx := context.Background()
	conv := &countingConv{}

	if err := e.Start(ctx, msgFrom("u1", "c1", "cmd"), conv); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.HandleMessage(ctx, msgFrom("u1", "c1", "maybe"))
	if got := fm.sent[len(fm.sent)-1]; got != "please answer yes" {
		t.Fatalf("corrective prompt %q", got)
	}
	e.HandleMessage(ctx, msgFrom("u1", "c1", "yes"))
	if got := fm.sent[len(fm.sent)-1]; got != "done!" {
		t.Fatalf("final reply %q", got)
	}
	if e.ActiveCount() != 0 {
		t.Fatal("finished conversation still registered")
	}

	finals := 0
	for _, s := range fm.sent {
		if s == "done!" {
			finals++
		}
	}
	if finals != 1 {
		t.Fatalf("final reply sent %d times", finals)
	}
}

func TestConsumeFailureForcesClose(t *testing.T) {
	t.Parallel()
	fm := &fakeMessenger{}
	e := NewEngine(fm, time.Hour, logx.Nop())
	ctx := context.Background()

	if err := e.Start(ctx, msgFrom("u1", "c1", "cmd"), &countingConv{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !e.HandleMessage(ctx, msgFrom("u1", "c1", "boom")) {
		t.Fatal("message not consumed")
	}
	if e.ActiveCount() != 0 {
		t.Fatal("failed conversation still registered")
	}
	if got := fm.sent[len(fm.sent)-1]; got != "Something went wrong, please try again." {
		t.Fatalf("failure reply %q", got)
	}
}

func TestSweepDropsIdleConversationsSilently(t *testing.T) {
	t.Parallel()
	fm := &fakeMessenger{}
	e := NewEngine(fm, 30*time.Minute, logx.Nop())
	ctx := context.Background()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	if err := e.Start(ctx, msgFrom("u1", "c1", "cmd"), &countingConv{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sentBefore := len(fm.sent)

	now = now.Add(29 * time.Minute)
	if n := e.Sweep(); n != 0 {
		t.Fatalf("swept %d before TTL", n)
	}

	now = now.Add(2 * time.Minute)
	if n := e.Sweep(); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if len(fm.sent) != sentBefore {
		t.Fatalf("expiry sent a reply: %v", fm.sent[sentBefore:])
	}
	if e.ActiveCount() != 0 {
		t.Fatal("expired conversation still registered")
	}
}
