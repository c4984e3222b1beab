package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clanbot/internal/conversation"
	"clanbot/internal/event"
	"clanbot/internal/transport"
)

// addConversation collects a new event definition. Inline parameters
// pre-answer questions; the conversation only asks what is still missing.
type addConversation struct {
	conversation.Base
	deps   *Deps
	params Params
	msg    *transport.Message

	name     string
	start    time.Time
	end      time.Time
	tracking event.Tracking
	hasTrack bool
	global   bool
}

func (c *addConversation) Init(ctx context.Context, msg *transport.Message) error {
	c.msg = msg
	c.global = c.params.Bool("global")

	if name := strings.TrimSpace(c.params.String("name")); name != "" {
		taken, err := c.nameTaken(ctx, name)
		if err != nil {
			return err
		}
		if !taken {
			c.name = name
		}
	}
	if raw := c.params.String("starting"); raw != "" {
		if t, err := parseWhen(raw); err == nil {
			c.start = t
		}
	}
	if raw := c.params.String("ending"); raw != "" {
		if t, err := parseWhen(raw); err == nil && c.validEnd(t) {
			c.end = t
		}
	}
	if raw := c.params.String("type"); raw != "" {
		if tr, err := parseTracking(raw); err == nil {
			c.tracking = tr
			c.hasTrack = true
		}
	}

	c.SetState(c.nextQuestion())
	return nil
}

// nextQuestion picks the first unanswered question, in fixed order.
func (c *addConversation) nextQuestion() conversation.State {
	switch {
	case c.name == "":
		return conversation.StateQ1
	case c.start.IsZero():
		return conversation.StateQ2
	case c.end.IsZero():
		return conversation.StateQ3
	case !c.hasTrack:
		return conversation.StateQ4
	default:
		return conversation.StateConfirm
	}
}

func (c *addConversation) ProduceQuestion() string {
	switch c.State() {
	case conversation.StateQ1:
		return "What shall the event be named? (type " + conversation.ExitToken + " to stop)"
	case conversation.StateQ1Error:
		return "Names must be unique and non-empty. Please try again."
	case conversation.StateQ2:
		return "When should the event start? (ISO 8601 format, e.g. 2026-07-01T18:00)"
	case conversation.StateQ2Error:
		return "Could not parse that date. Please use ISO 8601 format, e.g. 2026-07-01T18:00."
	case conversation.StateQ3:
		return "When should the event end?"
	case conversation.StateQ3Error:
		return "The end must be a valid future date after the start. Please try again."
	case conversation.StateQ4:
		return "What type of event? (skills skill1 skill2... OR bh OR clues difficulty... OR boss name OR custom)"
	case conversation.StateQ4Error:
		return "Could not parse the event type. Please try again."
	case conversation.StateConfirm:
		return fmt.Sprintf("Schedule %s (%s) from %s to %s?",
			c.name, c.tracking.Category,
			c.start.Format(time.RFC1123), c.end.Format(time.RFC1123))
	default:
		return ""
	}
}

func (c *addConversation) ConsumeAnswer(ctx context.Context, answer string) error {
	switch c.State() {
	case conversation.StateQ1, conversation.StateQ1Error:
		name := strings.TrimSpace(answer)
		if name == "" {
			c.SetState(conversation.StateQ1Error)
			return nil
		}
		taken, err := c.nameTaken(ctx, name)
		if err != nil {
			return err
		}
		if taken {
			c.SetState(conversation.StateQ1Error)
			return nil
		}
		c.name = name
	case conversation.StateQ2, conversation.StateQ2Error:
		t, err := parseWhen(answer)
		if err != nil {
			c.SetState(conversation.StateQ2Error)
			return nil
		}
		c.start = t
	case conversation.StateQ3, conversation.StateQ3Error:
		t, err := parseWhen(answer)
		if err != nil || !c.validEnd(t) {
			c.SetState(conversation.StateQ3Error)
			return nil
		}
		c.end = t
	case conversation.StateQ4, conversation.StateQ4Error:
		tr, err := parseTracking(answer)
		if err != nil {
			c.SetState(conversation.StateQ4Error)
			return nil
		}
		c.tracking = tr
		c.hasTrack = true
	case conversation.StateConfirm:
		if !isYes(answer) {
			c.Finish("Cancelled.")
			return nil
		}
		return c.schedule(ctx)
	}
	c.SetState(c.nextQuestion())
	return nil
}

func (c *addConversation) schedule(ctx context.Context) error {
	ev := &event.Event{
		Name:     c.name,
		When:     event.When{Start: c.start, End: c.end},
		Tracking: c.tracking,
		Global:   c.global,
		Locked:   c.global,
		Guilds: event.CompetingGuilds{
			Creator: event.Guild{
				DiscordID: c.msg.GuildID,
				ChannelID: c.msg.ChannelID,
			},
		},
	}
	if err := ev.Validate(); err != nil {
		c.Finish("Could not schedule the event: " + err.Error())
		return nil
	}
	id, err := c.deps.Store.UpsertEvent(ctx, ev)
	if err != nil {
		return err
	}
	ev.ID = id
	c.deps.Scheduler.EventCreated(ctx, ev)
	c.Finish(fmt.Sprintf("Event #%d %s scheduled.", id, ev.Name))
	return nil
}

func (c *addConversation) validEnd(t time.Time) bool {
	return !c.start.IsZero() && t.After(c.start) && t.After(c.deps.now())
}

func (c *addConversation) nameTaken(ctx context.Context, name string) (bool, error) {
	existing, err := c.deps.Store.FetchGuildEvents(ctx, c.msg.GuildID)
	if err != nil {
		return false, err
	}
	for _, ev := range existing {
		if strings.EqualFold(ev.Name, name) {
			return true, nil
		}
	}
	return false, nil
}
