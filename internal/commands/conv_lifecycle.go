package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"clanbot/internal/conversation"
	"clanbot/internal/event"
	"clanbot/internal/transport"
)

// deleteConversation removes an event and every timer armed for it.
type deleteConversation struct {
	conversation.Base
	deps   *Deps
	params Params
	msg    *transport.Message
	ev     *event.Event
}

func (c *deleteConversation) Init(ctx context.Context, msg *transport.Message) error {
	c.msg = msg
	if id, ok := c.params.Int("id"); ok {
		ev, err := c.deps.fetchCreatorEvent(ctx, id, msg.GuildID)
		if err != nil {
			return err
		}
		if ev != nil {
			c.ev = ev
			c.SetState(conversation.StateConfirm)
			return nil
		}
	}
	c.SetState(conversation.StateQ1)
	return nil
}

func (c *deleteConversation) ProduceQuestion() string {
	switch c.State() {
	case conversation.StateQ1:
		return "Delete which event id? (type " + conversation.ExitToken + " to stop)"
	case conversation.StateQ1Error:
		return eventNotFoundPrompt
	case conversation.StateConfirm:
		return fmt.Sprintf("Are you sure you want to delete %s? This cannot be undone.", c.ev.Name)
	default:
		return ""
	}
}

func (c *deleteConversation) ConsumeAnswer(ctx context.Context, answer string) error {
	switch c.State() {
	case conversation.StateQ1, conversation.StateQ1Error:
		id, err := strconv.ParseInt(strings.TrimSpace(answer), 10, 64)
		if err != nil {
			c.SetState(conversation.StateQ1Error)
			return nil
		}
		ev, err := c.deps.fetchCreatorEvent(ctx, id, c.msg.GuildID)
		if err != nil {
			return err
		}
		if ev == nil {
			c.SetState(conversation.StateQ1Error)
			return nil
		}
		c.ev = ev
		c.SetState(conversation.StateConfirm)
	case conversation.StateConfirm:
		if !isYes(answer) {
			c.Finish("Cancelled.")
			return nil
		}
		c.deps.Scheduler.EventDeleted(ctx, c.ev.ID)
		if err := c.deps.Store.DeleteEvent(ctx, c.ev.ID); err != nil {
			return err
		}
		c.Finish("Event deleted.")
	}
	return nil
}

// endConversation moves an event's end to now and fires its end
// transition immediately.
type endConversation struct {
	conversation.Base
	deps   *Deps
	params Params
	msg    *transport.Message
	ev     *event.Event
}

func (c *endConversation) Init(ctx context.Context, msg *transport.Message) error {
	c.msg = msg
	if id, ok := c.params.Int("id"); ok {
		ev, err := c.deps.fetchCreatorEvent(ctx, id, msg.GuildID)
		if err != nil {
			return err
		}
		if ev != nil {
			c.ev = ev
			c.SetState(conversation.StateConfirm)
			return nil
		}
	}
	c.SetState(conversation.StateQ1)
	return nil
}

func (c *endConversation) ProduceQuestion() string {
	switch c.State() {
	case conversation.StateQ1:
		return "End which event id? (type " + conversation.ExitToken + " to stop)"
	case conversation.StateQ1Error:
		return eventNotFoundPrompt
	case conversation.StateConfirm:
		return fmt.Sprintf("Are you sure you want to end %s now? This cannot be undone.", c.ev.Name)
	default:
		return ""
	}
}

func (c *endConversation) ConsumeAnswer(ctx context.Context, answer string) error {
	switch c.State() {
	case conversation.StateQ1, conversation.StateQ1Error:
		id, err := strconv.ParseInt(strings.TrimSpace(answer), 10, 64)
		if err != nil {
			c.SetState(conversation.StateQ1Error)
			return nil
		}
		ev, err := c.deps.fetchCreatorEvent(ctx, id, c.msg.GuildID)
		if err != nil {
			return err
		}
		if ev == nil {
			c.SetState(conversation.StateQ1Error)
			return nil
		}
		c.ev = ev
		c.SetState(conversation.StateConfirm)
	case conversation.StateConfirm:
		if !isYes(answer) {
			c.Finish("Did not end event.")
			return nil
		}
		now := c.deps.now()
		if c.ev.StatusAt(now) == event.StatusEnded {
			c.Finish("That event already ended.")
			return nil
		}
		c.ev.When.End = now
		if _, err := c.deps.Store.UpsertEvent(ctx, c.ev); err != nil {
			return err
		}
		c.deps.Scheduler.EndNow(ctx, c.ev)
		c.Finish("Event successfully ended.")
	}
	return nil
}

// unlockConversation clears the admin lock so users can sign up again.
// Global events stay locked permanently.
type unlockConversation struct {
	conversation.Base
	deps   *Deps
	params Params
	msg    *transport.Message
}

func (c *unlockConversation) Init(ctx context.Context, msg *transport.Message) error {
	c.msg = msg
	if id, ok := c.params.Int("id"); ok {
		return c.unlock(ctx, id)
	}
	c.SetState(conversation.StateQ1)
	return nil
}

func (c *unlockConversation) ProduceQuestion() string {
	switch c.State() {
	case conversation.StateQ1:
		return "Which event id would you like to unlock? (type " + conversation.ExitToken + " to stop)"
	case conversation.StateQ1Error:
		return eventNotFoundPrompt
	default:
		return ""
	}
}

func (c *unlockConversation) ConsumeAnswer(ctx context.Context, answer string) error {
	switch c.State() {
	case conversation.StateQ1, conversation.StateQ1Error:
		id, err := strconv.ParseInt(strings.TrimSpace(answer), 10, 64)
		if err != nil {
			c.SetState(conversation.StateQ1Error)
			return nil
		}
		return c.unlock(ctx, id)
	}
	return nil
}

func (c *unlockConversation) unlock(ctx context.Context, id int64) error {
	ev, err := c.deps.fetchCreatorEvent(ctx, id, c.msg.GuildID)
	if err != nil {
		return err
	}
	if ev == nil {
		c.SetState(conversation.StateQ1Error)
		return nil
	}
	if ev.Global {
		c.Finish("Globally enabled events automatically lock and cannot be unlocked.")
		return nil
	}
	ev.Locked = false
	if _, err := c.deps.Store.UpsertEvent(ctx, ev); err != nil {
		return err
	}
	c.Finish("Successfully unlocked event.")
	return nil
}

// editConversation renames an event that has not started yet.
type editConversation struct {
	conversation.Base
	deps    *Deps
	params  Params
	msg     *transport.Message
	ev      *event.Event
	newName string
}

func (c *editConversation) Init(ctx context.Context, msg *transport.Message) error {
	c.msg = msg
	if id, ok := c.params.Int("id"); ok {
		done, err := c.pickEvent(ctx, id)
		if err != nil || done {
			return err
		}
		if c.ev == nil {
			// Unknown id from the inline parameters: fall back to asking.
			return nil
		}
		if name := strings.TrimSpace(c.params.String("name")); name != "" {
			c.newName = name
			c.SetState(conversation.StateConfirm)
			return nil
		}
		c.SetState(conversation.StateQ2)
		return nil
	}
	c.SetState(conversation.StateQ1)
	return nil
}

func (c *editConversation) ProduceQuestion() string {
	switch c.State() {
	case conversation.StateQ1:
		return "Edit which event id? (type " + conversation.ExitToken + " to stop)"
	case conversation.StateQ1Error:
		return eventNotFoundPrompt
	case conversation.StateQ2:
		return "What is the new name?"
	case conversation.StateQ2Error:
		return "Names must be non-empty. Please try again."
	case conversation.StateConfirm:
		return fmt.Sprintf("Rename %s to %s?", c.ev.Name, c.newName)
	default:
		return ""
	}
}

func (c *editConversation) ConsumeAnswer(ctx context.Context, answer string) error {
	switch c.State() {
	case conversation.StateQ1, conversation.StateQ1Error:
		id, err := strconv.ParseInt(strings.TrimSpace(answer), 10, 64)
		if err != nil {
			c.SetState(conversation.StateQ1Error)
			return nil
		}
		if done, err := c.pickEvent(ctx, id); err != nil || done {
			return err
		}
		if c.ev == nil {
			return nil
		}
		c.SetState(conversation.StateQ2)
	case conversation.StateQ2, conversation.StateQ2Error:
		name := strings.TrimSpace(answer)
		if name == "" {
			c.SetState(conversation.StateQ2Error)
			return nil
		}
		c.newName = name
		c.SetState(conversation.StateConfirm)
	case conversation.StateConfirm:
		if !isYes(answer) {
			c.Finish("Cancelled.")
			return nil
		}
		c.ev.Name = c.newName
		if _, err := c.deps.Store.UpsertEvent(ctx, c.ev); err != nil {
			return err
		}
		c.Finish("Event renamed.")
	}
	return nil
}

// pickEvent resolves the target; it finishes the conversation outright
// when the event can no longer be edited.
func (c *editConversation) pickEvent(ctx context.Context, id int64) (bool, error) {
	ev, err := c.deps.fetchCreatorEvent(ctx, id, c.msg.GuildID)
	if err != nil {
		return false, err
	}
	if ev == nil {
		c.SetState(conversation.StateQ1Error)
		return false, nil
	}
	if ev.Started(c.deps.now()) {
		c.Finish("Events can only be renamed before they start.")
		return true, nil
	}
	c.ev = ev
	return false, nil
}
