package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"clanbot/internal/conversation"
	"clanbot/internal/event"
	"clanbot/internal/hiscores"
	"clanbot/internal/transport"
)

// signupConversation signs a user up for an event: event id, then the
// account name (validated against the hiscores), then a team. Custom
// events track no accounts, so the RSN question is skipped for them.
// In forced mode an admin signs up the first mentioned user instead.
type signupConversation struct {
	conversation.Base
	deps   *Deps
	params Params
	forced bool

	msg    *transport.Message
	target string
	ev     *event.Event
	rsn    string
	team   string
}

func (c *signupConversation) Init(ctx context.Context, msg *transport.Message) error {
	c.msg = msg
	c.target = msg.AuthorID
	if c.forced {
		if len(msg.Mentions) == 0 {
			c.Finish("Mention the user to sign up.")
			return nil
		}
		c.target = msg.Mentions[0]
	}

	if id, ok := c.params.Int("id"); ok {
		if err := c.pickEvent(ctx, id); err != nil {
			return err
		}
		if c.State().Terminal() || c.ev == nil {
			return nil
		}
	}
	if c.ev != nil {
		if rsn := strings.TrimSpace(c.params.String("rsn")); rsn != "" && !c.ev.Custom() {
			ok, err := c.validRSN(ctx, rsn)
			if err != nil {
				return err
			}
			if ok {
				c.rsn = rsn
			}
		}
		if team := strings.TrimSpace(c.params.String("team")); team != "" {
			c.team = team
		}
	}
	c.SetState(c.nextQuestion())
	return nil
}

func (c *signupConversation) nextQuestion() conversation.State {
	switch {
	case c.ev == nil:
		return conversation.StateQ1
	case c.rsn == "" && !c.ev.Custom():
		return conversation.StateQ2
	case c.team == "":
		return conversation.StateQ3
	default:
		return conversation.StateConfirm
	}
}

func (c *signupConversation) ProduceQuestion() string {
	switch c.State() {
	case conversation.StateQ1:
		return "Sign up for which event id? (type " + conversation.ExitToken + " to stop)"
	case conversation.StateQ1Error:
		return eventNotFoundPrompt
	case conversation.StateQ2:
		return "What is the account name to sign up?"
	case conversation.StateQ2Error:
		return "Could not find that name on the hiscores. Please try again."
	case conversation.StateQ3:
		return "Which team? (a new or existing team name)"
	case conversation.StateQ3Error:
		return "Team names must be non-empty. Please try again."
	case conversation.StateConfirm:
		who := "you"
		if c.forced {
			who = fmt.Sprintf("<@%s>", c.target)
		}
		if c.ev.Custom() {
			return fmt.Sprintf("Sign %s up to team %s for %s?", who, c.team, c.ev.Name)
		}
		return fmt.Sprintf("Sign %s up as %s to team %s for %s?", who, c.rsn, c.team, c.ev.Name)
	default:
		return ""
	}
}

func (c *signupConversation) ConsumeAnswer(ctx context.Context, answer string) error {
	switch c.State() {
	case conversation.StateQ1, conversation.StateQ1Error:
		id, err := strconv.ParseInt(strings.TrimSpace(answer), 10, 64)
		if err != nil {
			c.SetState(conversation.StateQ1Error)
			return nil
		}
		if err := c.pickEvent(ctx, id); err != nil {
			return err
		}
		if c.State().Terminal() || c.ev == nil {
			return nil
		}
	case conversation.StateQ2, conversation.StateQ2Error:
		rsn := strings.TrimSpace(answer)
		ok, err := c.validRSN(ctx, rsn)
		if err != nil {
			return err
		}
		if !ok {
			c.SetState(conversation.StateQ2Error)
			return nil
		}
		c.rsn = rsn
	case conversation.StateQ3, conversation.StateQ3Error:
		team := strings.TrimSpace(answer)
		if team == "" {
			c.SetState(conversation.StateQ3Error)
			return nil
		}
		c.team = team
	case conversation.StateConfirm:
		if !isYes(answer) {
			c.Finish("Cancelled.")
			return nil
		}
		return c.signup(ctx)
	}
	c.SetState(c.nextQuestion())
	return nil
}

func (c *signupConversation) pickEvent(ctx context.Context, id int64) error {
	ev, err := c.deps.fetchVisibleEvent(ctx, id, c.msg.GuildID)
	if err != nil {
		return err
	}
	if ev == nil {
		c.SetState(conversation.StateQ1Error)
		return nil
	}
	if ev.StatusAt(c.deps.now()) == event.StatusEnded {
		c.Finish("That event already ended.")
		return nil
	}
	if ev.Locked && !c.forced {
		c.Finish("That event is locked. An admin can unlock it.")
		return nil
	}
	if _, _, ok := ev.FindParticipant(c.target); ok {
		if c.forced {
			c.Finish("That user is already signed up.")
		} else {
			c.Finish("You are already signed up.")
		}
		return nil
	}
	c.ev = ev
	return nil
}

func (c *signupConversation) validRSN(ctx context.Context, rsn string) (bool, error) {
	if rsn == "" {
		return false, nil
	}
	_, err := c.deps.Hiscores.Lookup(ctx, rsn)
	if errors.Is(err, hiscores.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *signupConversation) signup(ctx context.Context) error {
	p := event.Participant{DiscordID: c.target}
	if !c.ev.Custom() {
		p.Accounts = []event.Account{{Name: c.rsn}}
	}
	if err := c.ev.AddParticipant(c.team, c.msg.GuildID, p); err != nil {
		c.Finish("Could not sign up: " + err.Error())
		return nil
	}
	if _, err := c.deps.Store.UpsertEvent(ctx, c.ev); err != nil {
		return err
	}
	c.Finish("Signed up!")
	return nil
}

// unsignupConversation removes a participant; an emptied team is dropped
// with them.
type unsignupConversation struct {
	conversation.Base
	deps   *Deps
	params Params
	forced bool

	msg    *transport.Message
	target string
}

func (c *unsignupConversation) Init(ctx context.Context, msg *transport.Message) error {
	c.msg = msg
	c.target = msg.AuthorID
	if c.forced {
		if len(msg.Mentions) == 0 {
			c.Finish("Mention the user to remove.")
			return nil
		}
		c.target = msg.Mentions[0]
	}
	if id, ok := c.params.Int("id"); ok {
		return c.remove(ctx, id)
	}
	c.SetState(conversation.StateQ1)
	return nil
}

func (c *unsignupConversation) ProduceQuestion() string {
	switch c.State() {
	case conversation.StateQ1:
		return "Leave which event id? (type " + conversation.ExitToken + " to stop)"
	case conversation.StateQ1Error:
		return eventNotFoundPrompt
	default:
		return ""
	}
}

func (c *unsignupConversation) ConsumeAnswer(ctx context.Context, answer string) error {
	switch c.State() {
	case conversation.StateQ1, conversation.StateQ1Error:
		id, err := strconv.ParseInt(strings.TrimSpace(answer), 10, 64)
		if err != nil {
			c.SetState(conversation.StateQ1Error)
			return nil
		}
		return c.remove(ctx, id)
	}
	return nil
}

func (c *unsignupConversation) remove(ctx context.Context, id int64) error {
	ev, err := c.deps.fetchVisibleEvent(ctx, id, c.msg.GuildID)
	if err != nil {
		return err
	}
	if ev == nil {
		c.SetState(conversation.StateQ1Error)
		return nil
	}
	if ev.StatusAt(c.deps.now()) == event.StatusEnded {
		c.Finish("That event already ended.")
		return nil
	}
	if !ev.RemoveParticipant(c.target) {
		if c.forced {
			c.Finish("That user is not signed up for that event.")
		} else {
			c.Finish("You are not signed up for that event.")
		}
		return nil
	}
	if _, err := c.deps.Store.UpsertEvent(ctx, ev); err != nil {
		return err
	}
	c.Finish("Removed from the event.")
	return nil
}

// updateScoreConversation adds a manual offset to a participant's score,
// the only scoring mechanism custom events have.
type updateScoreConversation struct {
	conversation.Base
	deps   *Deps
	params Params

	msg    *transport.Message
	target string
	ev     *event.Event
	score  int64
	hasAmt bool
}

func (c *updateScoreConversation) Init(ctx context.Context, msg *transport.Message) error {
	c.msg = msg
	c.target = msg.AuthorID
	if len(msg.Mentions) > 0 {
		c.target = msg.Mentions[0]
	}

	if id, ok := c.params.Int("id"); ok {
		if err := c.pickEvent(ctx, id); err != nil {
			return err
		}
		if c.State().Terminal() || c.ev == nil {
			return nil
		}
	}
	if amt, ok := c.params.Int("score"); ok {
		c.score = amt
		c.hasAmt = true
	}
	c.SetState(c.nextQuestion())
	return nil
}

func (c *updateScoreConversation) nextQuestion() conversation.State {
	switch {
	case c.ev == nil:
		return conversation.StateQ1
	case !c.hasAmt:
		return conversation.StateQ2
	default:
		return conversation.StateConfirm
	}
}

func (c *updateScoreConversation) ProduceQuestion() string {
	switch c.State() {
	case conversation.StateQ1:
		return "Update a score on which event id? (type " + conversation.ExitToken + " to stop)"
	case conversation.StateQ1Error:
		return eventNotFoundPrompt
	case conversation.StateQ2:
		return "How much should be added? (a positive or negative number)"
	case conversation.StateQ2Error:
		return "That is not a number. Please try again."
	case conversation.StateConfirm:
		return fmt.Sprintf("Add %d to <@%s>'s score for %s?", c.score, c.target, c.ev.Name)
	default:
		return ""
	}
}

func (c *updateScoreConversation) ConsumeAnswer(ctx context.Context, answer string) error {
	switch c.State() {
	case conversation.StateQ1, conversation.StateQ1Error:
		id, err := strconv.ParseInt(strings.TrimSpace(answer), 10, 64)
		if err != nil {
			c.SetState(conversation.StateQ1Error)
			return nil
		}
		if err := c.pickEvent(ctx, id); err != nil {
			return err
		}
		if c.State().Terminal() || c.ev == nil {
			return nil
		}
	case conversation.StateQ2, conversation.StateQ2Error:
		amt, err := strconv.ParseInt(strings.TrimSpace(answer), 10, 64)
		if err != nil {
			c.SetState(conversation.StateQ2Error)
			return nil
		}
		c.score = amt
		c.hasAmt = true
	case conversation.StateConfirm:
		if !isYes(answer) {
			c.Finish("Cancelled.")
			return nil
		}
		return c.apply(ctx)
	}
	c.SetState(c.nextQuestion())
	return nil
}

func (c *updateScoreConversation) pickEvent(ctx context.Context, id int64) error {
	ev, err := c.deps.fetchCreatorEvent(ctx, id, c.msg.GuildID)
	if err != nil {
		return err
	}
	if ev == nil {
		c.SetState(conversation.StateQ1Error)
		return nil
	}
	if _, _, ok := ev.FindParticipant(c.target); !ok {
		c.Finish("That user is not signed up for that event.")
		return nil
	}
	c.ev = ev
	return nil
}

func (c *updateScoreConversation) apply(ctx context.Context) error {
	ti, pi, ok := c.ev.FindParticipant(c.target)
	if !ok {
		c.Finish("That user is not signed up for that event.")
		return nil
	}
	c.ev.Teams[ti].Participants[pi].CustomScore += c.score
	if _, err := c.deps.Store.UpsertEvent(ctx, c.ev); err != nil {
		return err
	}
	c.Finish("Score updated.")
	return nil
}
