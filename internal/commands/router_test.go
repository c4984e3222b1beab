package commands

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"clanbot/internal/conversation"
	"clanbot/internal/event"
	"clanbot/internal/hiscores"
	"clanbot/internal/storage"
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

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]*event.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, events: make(map[int64]*event.Event)}
}

func (f *fakeStore) UpsertEvent(ctx context.Context, ev *event.Event) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ev
	if cp.ID == 0 {
		cp.ID = f.nextID
		f.nextID++
	}
	f.events[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeStore) FetchEvent(ctx context.Context, id int64) (*event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (f *fakeStore) FetchEventsBetween(ctx context.Context, from, to time.Time) ([]*event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*event.Event
	for _, ev := range f.events {
		if !ev.When.Start.After(to) && ev.When.End.After(from) {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchGuildEvents(ctx context.Context, guildID string) ([]*event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*event.Event
	for _, ev := range f.events {
		if ev.Guilds.Creator.DiscordID == guildID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchGuildEventsBetween(ctx context.Context, guildID string, from, to time.Time) ([]*event.Event, error) {
	all, _ := f.FetchGuildEvents(ctx, guildID)
	var out []*event.Event
	for _, ev := range all {
		if !ev.When.Start.After(to) && ev.When.End.After(from) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchParticipantEvents(ctx context.Context, discordID string) ([]*event.Event, error) {
	return nil, nil
}

func (f *fakeStore) DeleteEvent(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.events, id)
	return nil
}

func (f *fakeStore) Close() error { return nil }

type fakeLifecycle struct {
	created []int64
	deleted []int64
	ended   []int64
}

func (f *fakeLifecycle) EventCreated(ctx context.Context, ev *event.Event) {
	f.created = append(f.created, ev.ID)
}
func (f *fakeLifecycle) EventDeleted(ctx context.Context, id int64) {
	f.deleted = append(f.deleted, id)
}
func (f *fakeLifecycle) EndNow(ctx context.Context, ev *event.Event) {
	f.ended = append(f.ended, ev.ID)
}

type fakeHiscores struct {
	known map[string]bool
}

func (f *fakeHiscores) Lookup(ctx context.Context, name string) (event.Snapshot, error) {
	if f.known[strings.ToLower(name)] {
		return event.Snapshot{}, nil
	}
	return nil, hiscores.ErrNotFound
}

type routerFixture struct {
	router *Router
	store  *fakeStore
	sched  *fakeLifecycle
	msgs   *fakeMessenger
	now    time.Time
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	fx := &routerFixture{
		store: newFakeStore(),
		sched: &fakeLifecycle{},
		msgs:  &fakeMessenger{},
		now:   time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}
	deps := &Deps{
		Store:     fx.store,
		Hiscores:  &fakeHiscores{known: map[string]bool{"zezima": true}},
		Scheduler: fx.sched,
		Messenger: fx.msgs,
		Now:       func() time.Time { return fx.now },
	}
	engine := conversation.NewEngine(fx.msgs, time.Hour, logx.Nop())
	fx.router = NewRouter("!clan ", engine, deps, logx.Nop())
	return fx
}

func (fx *routerFixture) send(t *testing.T, text string, admin bool) {
	t.Helper()
	fx.router.HandleUpdate(context.Background(), transport.Update{Message: &transport.Message{
		ID:            "m",
		ChannelID:     "chan-1",
		GuildID:       "guild-1",
		AuthorID:      "user-1",
		Text:          text,
		AuthorIsAdmin: admin,
	}})
}

func (fx *routerFixture) lastReply() string {
	if len(fx.msgs.sent) == 0 {
		return ""
	}
	return fx.msgs.sent[len(fx.msgs.sent)-1]
}

func (fx *routerFixture) seedEvent(t *testing.T, ev *event.Event) int64 {
	t.Helper()
	id, err := fx.store.UpsertEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return id
}

func seedSkillsEvent(name string, start, end time.Time) *event.Event {
	return &event.Event{
		Name:     name,
		When:     event.When{Start: start, End: end},
		Tracking: event.Tracking{Category: event.CategorySkills, What: []string{"woodcutting"}},
		Guilds:   event.CompetingGuilds{Creator: event.Guild{DiscordID: "guild-1", ChannelID: "chan-1"}},
	}
}

func TestAdminCommandRefusedForNonAdmin(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	fx.send(t, "!clan events delete id=1", false)
	if got := fx.lastReply(); got != "You do not have access to that command." {
		t.Fatalf("reply %q", got)
	}
}

func TestUnknownTextIsIgnored(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	fx.send(t, "hello there", false)
	fx.send(t, "!clan events frobnicate", true)
	if len(fx.msgs.sent) != 0 {
		t.Fatalf("unexpected replies: %v", fx.msgs.sent)
	}
}

func TestAddEventWithFullParamsShortCircuitsToConfirm(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)

	fx.send(t, "!clan events add name=Summer Cup starting=2026-07-02T12:00 ending=2026-07-03T12:00 type=skills woodcutting", true)
	if !strings.HasPrefix(fx.lastReply(), "Schedule Summer Cup (skills)") {
		t.Fatalf("confirm prompt %q", fx.lastReply())
	}

	fx.send(t, "yes", true)
	if got := fx.lastReply(); got != "Event #1 Summer Cup scheduled." {
		t.Fatalf("final reply %q", got)
	}
	if len(fx.sched.created) != 1 || fx.sched.created[0] != 1 {
		t.Fatalf("scheduler created calls: %v", fx.sched.created)
	}
	ev, err := fx.store.FetchEvent(context.Background(), 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if ev.Guilds.Creator.ChannelID != "chan-1" {
		t.Fatalf("announcement channel %q", ev.Guilds.Creator.ChannelID)
	}
}

func TestAddEventAsksForMissingAnswers(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)

	fx.send(t, "!clan events add name=Quiet Cup type=custom", true)
	if !strings.HasPrefix(fx.lastReply(), "When should the event start?") {
		t.Fatalf("prompt %q", fx.lastReply())
	}
	fx.send(t, "not a date", true)
	if !strings.HasPrefix(fx.lastReply(), "Could not parse that date") {
		t.Fatalf("corrective prompt %q", fx.lastReply())
	}
	fx.send(t, "2026-07-02T12:00", true)
	if !strings.HasPrefix(fx.lastReply(), "When should the event end?") {
		t.Fatalf("prompt %q", fx.lastReply())
	}
	fx.send(t, "2026-07-01T12:00", true) // before start
	if !strings.HasPrefix(fx.lastReply(), "The end must be a valid future date") {
		t.Fatalf("corrective prompt %q", fx.lastReply())
	}
	fx.send(t, "2026-07-03T12:00", true)
	if !strings.HasPrefix(fx.lastReply(), "Schedule Quiet Cup (custom)") {
		t.Fatalf("confirm prompt %q", fx.lastReply())
	}
	fx.send(t, "y", true)
	if got := fx.lastReply(); got != "Event #1 Quiet Cup scheduled." {
		t.Fatalf("final reply %q", got)
	}
}

func TestDeleteConversationRemovesTimersAndRow(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	id := fx.seedEvent(t, seedSkillsEvent("Doomed", fx.now.Add(time.Hour), fx.now.Add(2*time.Hour)))

	fx.send(t, "!clan events delete", true)
	if !strings.HasPrefix(fx.lastReply(), "Delete which event id?") {
		t.Fatalf("prompt %q", fx.lastReply())
	}
	fx.send(t, "not-a-number", true)
	if fx.lastReply() != eventNotFoundPrompt {
		t.Fatalf("corrective prompt %q", fx.lastReply())
	}
	fx.send(t, "1", true)
	if !strings.HasPrefix(fx.lastReply(), "Are you sure you want to delete Doomed?") {
		t.Fatalf("confirm prompt %q", fx.lastReply())
	}
	fx.send(t, "yes", true)
	if got := fx.lastReply(); got != "Event deleted." {
		t.Fatalf("final reply %q", got)
	}
	if len(fx.sched.deleted) != 1 || fx.sched.deleted[0] != id {
		t.Fatalf("scheduler deleted calls: %v", fx.sched.deleted)
	}
	if _, err := fx.store.FetchEvent(context.Background(), id); err == nil {
		t.Fatal("event still stored")
	}
}

func TestEndNowMovesEndAndNotifiesScheduler(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	id := fx.seedEvent(t, seedSkillsEvent("Running", fx.now.Add(-time.Hour), fx.now.Add(time.Hour)))

	fx.send(t, "!clan events end id=1", true)
	if !strings.HasPrefix(fx.lastReply(), "Are you sure you want to end Running now?") {
		t.Fatalf("confirm prompt %q", fx.lastReply())
	}
	fx.send(t, "yes", true)
	if got := fx.lastReply(); got != "Event successfully ended." {
		t.Fatalf("final reply %q", got)
	}
	if len(fx.sched.ended) != 1 || fx.sched.ended[0] != id {
		t.Fatalf("scheduler end calls: %v", fx.sched.ended)
	}
	ev, _ := fx.store.FetchEvent(context.Background(), id)
	if !ev.When.End.Equal(fx.now) {
		t.Fatalf("end = %v, want %v", ev.When.End, fx.now)
	}
}

func TestSignupValidatesRSNAndPersistsTeam(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	fx.seedEvent(t, seedSkillsEvent("Open Cup", fx.now.Add(time.Hour), fx.now.Add(2*time.Hour)))

	fx.send(t, "!clan users signup id=1", false)
	if !strings.HasPrefix(fx.lastReply(), "What is the account name") {
		t.Fatalf("prompt %q", fx.lastReply())
	}
	fx.send(t, "nobody", false)
	if !strings.HasPrefix(fx.lastReply(), "Could not find that name") {
		t.Fatalf("corrective prompt %q", fx.lastReply())
	}
	fx.send(t, "Zezima", false)
	if !strings.HasPrefix(fx.lastReply(), "Which team?") {
		t.Fatalf("prompt %q", fx.lastReply())
	}
	fx.send(t, "Lumberjacks", false)
	if !strings.HasPrefix(fx.lastReply(), "Sign you up as Zezima to team Lumberjacks") {
		t.Fatalf("confirm prompt %q", fx.lastReply())
	}
	fx.send(t, "yes", false)
	if got := fx.lastReply(); got != "Signed up!" {
		t.Fatalf("final reply %q", got)
	}

	ev, _ := fx.store.FetchEvent(context.Background(), 1)
	if len(ev.Teams) != 1 || ev.Teams[0].Name != "Lumberjacks" {
		t.Fatalf("teams %+v", ev.Teams)
	}
	p := ev.Teams[0].Participants[0]
	if p.DiscordID != "user-1" || len(p.Accounts) != 1 || p.Accounts[0].Name != "Zezima" {
		t.Fatalf("participant %+v", p)
	}
}

func TestSignupRefusedOnLockedEvent(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	ev := seedSkillsEvent("Locked Cup", fx.now.Add(time.Hour), fx.now.Add(2*time.Hour))
	ev.Locked = true
	fx.seedEvent(t, ev)

	fx.send(t, "!clan users signup id=1", false)
	if !strings.HasPrefix(fx.lastReply(), "That event is locked.") {
		t.Fatalf("reply %q", fx.lastReply())
	}
}

func TestUnsignupDropsEmptiedTeam(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	ev := seedSkillsEvent("Open Cup", fx.now.Add(time.Hour), fx.now.Add(2*time.Hour))
	ev.Teams = []event.Team{{
		Name:    "Solo",
		GuildID: "guild-1",
		Participants: []event.Participant{
			{DiscordID: "user-1", Accounts: []event.Account{{Name: "Zezima"}}},
		},
	}}
	fx.seedEvent(t, ev)

	fx.send(t, "!clan users unsignup id=1", false)
	if got := fx.lastReply(); got != "Removed from the event." {
		t.Fatalf("reply %q", got)
	}
	stored, _ := fx.store.FetchEvent(context.Background(), 1)
	if len(stored.Teams) != 0 {
		t.Fatalf("teams %+v", stored.Teams)
	}
}

func TestUpdateScoreAddsCustomOffset(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	ev := seedSkillsEvent("Cup", fx.now.Add(-time.Hour), fx.now.Add(time.Hour))
	ev.Tracking = event.Tracking{Category: event.CategoryCustom}
	ev.Teams = []event.Team{{
		Name:         "Solo",
		GuildID:      "guild-1",
		Participants: []event.Participant{{DiscordID: "user-1"}},
	}}
	fx.seedEvent(t, ev)

	fx.send(t, "!clan events update score id=1 score=25", true)
	if !strings.HasPrefix(fx.lastReply(), "Add 25 to <@user-1>'s score") {
		t.Fatalf("confirm prompt %q", fx.lastReply())
	}
	fx.send(t, "yes", true)
	if got := fx.lastReply(); got != "Score updated." {
		t.Fatalf("final reply %q", got)
	}
	stored, _ := fx.store.FetchEvent(context.Background(), 1)
	if got := stored.Teams[0].Participants[0].CustomScore; got != 25 {
		t.Fatalf("customScore %d", got)
	}
}

func TestUpdateScoreUnknownIDKeepsNotFoundPrompt(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)

	fx.send(t, "!clan events update score id=99 score=5", true)
	if got := fx.lastReply(); got != eventNotFoundPrompt {
		t.Fatalf("prompt %q, want the not-found prompt", got)
	}
}

func TestHelpHidesAdminCommands(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)

	fx.send(t, "!clan help", false)
	userHelp := fx.lastReply()
	if strings.Contains(userHelp, "events delete") {
		t.Fatal("user help lists admin command")
	}
	if !strings.Contains(userHelp, "users signup") {
		t.Fatal("user help missing user command")
	}

	fx.send(t, "!clan help", true)
	adminHelp := fx.lastReply()
	if !strings.Contains(adminHelp, "events delete") {
		t.Fatal("admin help missing admin command")
	}
}

func TestListAllAndActive(t *testing.T) {
	t.Parallel()
	fx := newRouterFixture(t)
	fx.seedEvent(t, seedSkillsEvent("Future", fx.now.Add(time.Hour), fx.now.Add(2*time.Hour)))
	fx.seedEvent(t, seedSkillsEvent("Live", fx.now.Add(-time.Hour), fx.now.Add(time.Hour)))

	fx.send(t, "!clan events list all", false)
	all := fx.lastReply()
	if !strings.Contains(all, "Future") || !strings.Contains(all, "Live") {
		t.Fatalf("list all %q", all)
	}

	fx.send(t, "!clan events list active", false)
	active := fx.lastReply()
	if strings.Contains(active, "Future") || !strings.Contains(active, "Live") {
		t.Fatalf("list active %q", active)
	}
}
