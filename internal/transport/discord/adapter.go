// Package discord adapts the Discord gateway to the normalized transport
// contract used by the core.
package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"clanbot/internal/transport"
	logx "clanbot/pkg/logx"
)

type Config struct {
	Token string
	// CommandPrefix is only used for logging noise reduction; routing happens
	// in the command layer.
	CommandPrefix string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	session *discordgo.Session

	runMu   sync.Mutex
	running bool
	out     atomic.Value // stores (chan<- transport.Update)

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the gateway. Logged on Stop to avoid per-update log spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	a := &Adapter{cfg: cfg, log: log, session: s}
	// Initialize atomic.Value with a stable dynamic type.
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	s.AddHandler(a.onMessageCreate)
	return a, nil
}

func (a *Adapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	// DMs have no guild; the core only runs guild-scoped commands.
	if m.GuildID == "" {
		return
	}

	mentions := make([]string, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		if u != nil {
			mentions = append(mentions, u.ID)
		}
	}

	up := transport.Update{
		Message: &transport.Message{
			ID:            m.ID,
			ChannelID:     m.ChannelID,
			GuildID:       m.GuildID,
			AuthorID:      m.Author.ID,
			AuthorName:    m.Author.Username,
			Text:          m.Content,
			Mentions:      mentions,
			AuthorIsAdmin: a.isAdmin(s, m),
		},
	}
	a.sendUpdate(up)
}

// isAdmin resolves whether the author may run admin commands: either the
// Administrator/Manage Server permission, or the dedicated event-manager role.
func (a *Adapter) isAdmin(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err == nil && perms&(discordgo.PermissionAdministrator|discordgo.PermissionManageServer) != 0 {
		return true
	}
	if m.Member == nil {
		return false
	}
	roles, err := s.GuildRoles(m.GuildID)
	if err != nil {
		return false
	}
	names := make(map[string]string, len(roles))
	for _, r := range roles {
		names[r.ID] = strings.ToLower(r.Name)
	}
	for _, rid := range m.Member.Roles {
		if names[rid] == "event manager" {
			return true
		}
	}
	return false
}

func (a *Adapter) sendUpdate(up transport.Update) {
	v := a.out.Load()
	ch, _ := v.(chan<- transport.Update)
	if ch == nil {
		return
	}
	select {
	case ch <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return errors.New("discord adapter already started")
	}
	a.out.Store(out)
	if err := a.session.Open(); err != nil {
		return err
	}
	a.running = true
	if u := a.session.State.User; u != nil {
		a.log.Info("discord connected", logx.String("user", u.Username), logx.String("id", u.ID))
	}
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	if n := atomic.LoadUint64(&a.droppedUpdates); n > 0 {
		a.log.Warn("dropped inbound updates", logx.Int64("count", int64(n)))
	}
	return a.session.Close()
}

// ---- Messenger ----

func (a *Adapter) Send(ctx context.Context, channelID, content string) (transport.MessageRef, error) {
	msg, err := a.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChannelID: channelID, MessageID: msg.ID}, nil
}

func (a *Adapter) Fetch(ctx context.Context, ref transport.MessageRef) (*transport.Message, error) {
	msg, err := a.session.ChannelMessage(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		var rerr *discordgo.RESTError
		if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}
	out := &transport.Message{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
		Text:      msg.Content,
	}
	if msg.Author != nil {
		out.AuthorID = msg.Author.ID
		out.AuthorName = msg.Author.Username
	}
	return out, nil
}

func (a *Adapter) Delete(ctx context.Context, ref transport.MessageRef) error {
	return a.session.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
}
