package commands

import (
	"context"
	"errors"
	"strings"
	"time"

	"clanbot/internal/conversation"
	"clanbot/internal/event"
	"clanbot/internal/hiscores"
	"clanbot/internal/storage"
	"clanbot/internal/transport"
	logx "clanbot/pkg/logx"
)

// Lifecycle is the scheduler surface the command layer mutates events
// through. Conversations persist first, then notify.
type Lifecycle interface {
	// EventCreated arms timers for a freshly persisted event when its
	// boundaries fall inside the scheduling window.
	EventCreated(ctx context.Context, ev *event.Event)
	// EventDeleted removes every armed timer for the id.
	EventDeleted(ctx context.Context, id int64)
	// EndNow pushes an already persisted event through its end transition.
	EndNow(ctx context.Context, ev *event.Event)
}

// Deps are the collaborators handed to every conversation and handler.
type Deps struct {
	Store     storage.Store
	Hiscores  hiscores.Client
	Scheduler Lifecycle
	Messenger transport.Messenger
	Log       logx.Logger
	Now       func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Router matches inbound messages against the command table and either
// starts a conversation or runs an immediate handler. Messages belonging
// to a live conversation are consumed by the engine first.
type Router struct {
	prefix string
	engine *conversation.Engine
	deps   *Deps
	log    logx.Logger

	triggers []string
}

func NewRouter(prefix string, engine *conversation.Engine, deps *Deps, log logx.Logger) *Router {
	if prefix == "" {
		prefix = "!clan "
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	deps.Log = log
	return &Router{
		prefix:   strings.ToLower(prefix),
		engine:   engine,
		deps:     deps,
		log:      log,
		triggers: orderedTriggers(),
	}
}

// HandleUpdate processes one inbound update end to end.
func (r *Router) HandleUpdate(ctx context.Context, up transport.Update) {
	msg := up.Message
	if msg == nil || msg.Text == "" {
		return
	}
	if r.engine.HandleMessage(ctx, msg) {
		return
	}

	lower := strings.ToLower(msg.Text)
	if !strings.HasPrefix(lower, r.prefix) {
		return
	}
	rest := strings.TrimSpace(lower[len(r.prefix):])

	var d Descriptor
	found := false
	for _, trigger := range r.triggers {
		if strings.HasPrefix(rest, trigger) {
			d = descriptors[trigger]
			found = true
			break
		}
	}
	if !found {
		return
	}
	if d.Access == AccessAdmin && !msg.AuthorIsAdmin {
		r.sendReply(ctx, msg.ChannelID, "You do not have access to that command.")
		return
	}

	params := d.Parse(msg.Text)
	r.dispatch(ctx, d, msg, params)
}

func (r *Router) dispatch(ctx context.Context, d Descriptor, msg *transport.Message, params Params) {
	var conv conversation.Conversation
	switch d.Trigger {
	case cmdEventsAdd:
		conv = &addConversation{deps: r.deps, params: params}
	case cmdEventsDelete:
		conv = &deleteConversation{deps: r.deps, params: params}
	case cmdEventsEdit:
		conv = &editConversation{deps: r.deps, params: params}
	case cmdEventsEnd:
		conv = &endConversation{deps: r.deps, params: params}
	case cmdEventsUnlock:
		conv = &unlockConversation{deps: r.deps, params: params}
	case cmdUsersSignup:
		conv = &signupConversation{deps: r.deps, params: params}
	case cmdEventsForceSignup:
		conv = &signupConversation{deps: r.deps, params: params, forced: true}
	case cmdUsersUnsignup:
		conv = &unsignupConversation{deps: r.deps, params: params}
	case cmdEventsForceUnsign:
		conv = &unsignupConversation{deps: r.deps, params: params, forced: true}
	case cmdEventsUpdateScore:
		conv = &updateScoreConversation{deps: r.deps, params: params}

	case cmdEventsListAll:
		r.sendReply(ctx, msg.ChannelID, r.listAll(ctx, msg))
		return
	case cmdEventsListActive:
		r.sendReply(ctx, msg.ChannelID, r.listActive(ctx, msg))
		return
	case cmdUsersListParts:
		r.sendReply(ctx, msg.ChannelID, r.listParticipants(ctx, msg, params))
		return
	case cmdUsersAmISignedUp:
		r.sendReply(ctx, msg.ChannelID, r.amISignedUp(ctx, msg, params))
		return
	case cmdHelp:
		r.sendReply(ctx, msg.ChannelID, HelpText(r.prefix, msg.AuthorIsAdmin))
		return
	default:
		r.log.Error("command without handler", logx.String("trigger", d.Trigger))
		return
	}

	if err := r.engine.Start(ctx, msg, conv); err != nil {
		if errors.Is(err, conversation.ErrConflict) {
			r.sendReply(ctx, msg.ChannelID,
				"Finish your current conversation first, or send "+conversation.ExitToken+" to cancel it.")
			return
		}
		r.log.Error("conversation start failed", logx.Err(err), logx.String("trigger", d.Trigger))
		r.sendReply(ctx, msg.ChannelID, "Something went wrong, please try again.")
	}
}

func (r *Router) sendReply(ctx context.Context, channelID, text string) {
	if text == "" {
		return
	}
	if _, err := r.deps.Messenger.Send(ctx, channelID, text); err != nil {
		r.log.Warn("reply failed", logx.Err(err), logx.String("channel", channelID))
	}
}
