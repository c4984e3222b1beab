package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"clanbot/internal/event"
	"clanbot/internal/eventbus"
	"clanbot/internal/hiscores"
	"clanbot/internal/storage"
	"clanbot/internal/transport"
	logx "clanbot/pkg/logx"
)

type memStore struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]*event.Event
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, events: make(map[int64]*event.Event)}
}

func (m *memStore) UpsertEvent(ctx context.Context, ev *event.Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneEvent(ev)
	if cp.ID == 0 {
		cp.ID = m.nextID
		m.nextID++
	}
	m.events[cp.ID] = cp
	return cp.ID, nil
}

func (m *memStore) FetchEvent(ctx context.Context, id int64) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneEvent(ev), nil
}

func (m *memStore) FetchEventsBetween(ctx context.Context, from, to time.Time) ([]*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*event.Event
	for _, ev := range m.events {
		if !ev.When.Start.After(to) && ev.When.End.After(from) {
			out = append(out, cloneEvent(ev))
		}
	}
	return out, nil
}

func (m *memStore) FetchGuildEvents(ctx context.Context, guildID string) ([]*event.Event, error) {
	return nil, nil
}

func (m *memStore) FetchGuildEventsBetween(ctx context.Context, guildID string, from, to time.Time) ([]*event.Event, error) {
	return nil, nil
}

func (m *memStore) FetchParticipantEvents(ctx context.Context, discordID string) ([]*event.Event, error) {
	return nil, nil
}

func (m *memStore) DeleteEvent(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *memStore) Close() error { return nil }

// cloneEvent deep-copies through the slices a refresh mutates.
func cloneEvent(ev *event.Event) *event.Event {
	cp := *ev
	cp.Teams = make([]event.Team, len(ev.Teams))
	for i, t := range ev.Teams {
		ct := t
		ct.Participants = make([]event.Participant, len(t.Participants))
		for j, p := range t.Participants {
			pc := p
			pc.Accounts = append([]event.Account(nil), p.Accounts...)
			ct.Participants[j] = pc
		}
		cp.Teams[i] = ct
	}
	cp.Guilds.Others = append([]event.Guild(nil), ev.Guilds.Others...)
	return &cp
}

type fakeStats struct {
	mu    sync.Mutex
	snaps map[string]event.Snapshot
	fails map[string]error
	calls []string
	// gate, when set, runs after the result is chosen and before it is
	// returned. Tests use it to hold a lookup in flight.
	gate func(name string)
}

func (f *fakeStats) Lookup(ctx context.Context, name string) (event.Snapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	failErr, failed := f.fails[name]
	snap, found := f.snaps[name]
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		gate(name)
	}
	if failed {
		return nil, failErr
	}
	if found {
		return snap, nil
	}
	return nil, hiscores.ErrNotFound
}

func (f *fakeStats) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeStats) set(name string, snap event.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[name] = snap
}

type recMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []string
	live    map[string]string // messageID -> content
	deleted []string
}

func newRecMessenger() *recMessenger {
	return &recMessenger{live: make(map[string]string)}
}

func (r *recMessenger) Send(ctx context.Context, channelID, content string) (transport.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := fmt.Sprintf("msg-%d", r.nextID)
	r.sent = append(r.sent, content)
	r.live[id] = content
	return transport.MessageRef{ChannelID: channelID, MessageID: id}, nil
}

func (r *recMessenger) Fetch(ctx context.Context, ref transport.MessageRef) (*transport.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	content, ok := r.live[ref.MessageID]
	if !ok {
		return nil, nil
	}
	return &transport.Message{ID: ref.MessageID, ChannelID: ref.ChannelID, Text: content}, nil
}

func (r *recMessenger) Delete(ctx context.Context, ref transport.MessageRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, ref.MessageID)
	r.deleted = append(r.deleted, ref.MessageID)
	return nil
}

func (r *recMessenger) sendCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// topicRecorder collects published topics in order.
type topicRecorder struct {
	mu     sync.Mutex
	topics []string
}

func (tr *topicRecorder) record(bus eventbus.Bus, topics ...string) {
	for _, topic := range topics {
		bus.Subscribe(topic, func(e eventbus.Event) {
			tr.mu.Lock()
			tr.topics = append(tr.topics, e.Topic)
			tr.mu.Unlock()
		})
	}
}

func (tr *topicRecorder) seen(topic string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, t := range tr.topics {
		if t == topic {
			return true
		}
	}
	return false
}

func (tr *topicRecorder) ordered() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.topics...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func trackedEvent(name string, start, end time.Time) *event.Event {
	return &event.Event{
		Name:     name,
		When:     event.When{Start: start, End: end},
		Tracking: event.Tracking{Category: event.CategorySkills, What: []string{"woodcutting"}},
		Teams: []event.Team{{
			Name:    "Lumberjacks",
			GuildID: "guild-1",
			Participants: []event.Participant{
				{DiscordID: "user-1", Accounts: []event.Account{{Name: "zezima"}}},
			},
		}},
		Guilds: event.CompetingGuilds{
			Creator: event.Guild{DiscordID: "guild-1", ChannelID: "chan-1"},
		},
	}
}

type fixture struct {
	sched *Scheduler
	store *memStore
	stats *fakeStats
	msgs  *recMessenger
	bus   eventbus.Bus
	rec   *topicRecorder
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	fx := &fixture{
		store: newMemStore(),
		stats: &fakeStats{snaps: map[string]event.Snapshot{
			"zezima": {"skills": {"woodcutting": 1000}},
		}},
		msgs: newRecMessenger(),
		bus:  eventbus.New(),
		rec:  &topicRecorder{},
	}
	fx.rec.record(fx.bus,
		TopicWillStart, TopicDidStart, TopicWillEnd, TopicDidEnd,
		TopicWillUpdateScores, TopicDidUpdateScores)
	fx.sched = New(cfg, fx.store, fx.stats, fx.bus, fx.msgs, logx.Nop())
	t.Cleanup(func() { _ = fx.sched.Stop(context.Background()) })
	return fx
}

func TestRescanIdempotent(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{})
	ctx := context.Background()

	ev := trackedEvent("Summer Cup", time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
	id, _ := fx.store.UpsertEvent(ctx, ev)

	if err := fx.sched.Rescan(ctx); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	start1, end1, _ := fx.sched.armed(id)
	if !start1 || !end1 {
		t.Fatalf("armed after first rescan: start=%t end=%t", start1, end1)
	}
	before := fx.sched.timers[id].start

	if err := fx.sched.Rescan(ctx); err != nil {
		t.Fatalf("second rescan: %v", err)
	}
	if fx.sched.timers[id].start != before {
		t.Fatal("second rescan replaced the armed start timer")
	}
}

func TestBoundariesOutsideLookaheadNotArmed(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{Lookahead: 25 * time.Hour})
	ctx := context.Background()

	ev := trackedEvent("Far Out", time.Now().Add(48*time.Hour), time.Now().Add(72*time.Hour))
	id, _ := fx.store.UpsertEvent(ctx, ev)

	if err := fx.sched.Rescan(ctx); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	start, end, _ := fx.sched.armed(id)
	if start || end {
		t.Fatalf("armed boundaries beyond lookahead: start=%t end=%t", start, end)
	}
}

func TestDeleteRemovesAllTimersAndRescanDoesNotResurrect(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{})
	ctx := context.Background()

	ev := trackedEvent("Doomed", time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
	id, _ := fx.store.UpsertEvent(ctx, ev)
	if err := fx.sched.Rescan(ctx); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	fx.sched.startRefreshLoop(id)

	start, end, refresh := fx.sched.armed(id)
	if !start || !end || !refresh {
		t.Fatalf("precondition: start=%t end=%t refresh=%t", start, end, refresh)
	}

	fx.sched.EventDeleted(ctx, id)
	if err := fx.store.DeleteEvent(ctx, id); err != nil {
		t.Fatalf("store delete: %v", err)
	}

	start, end, refresh = fx.sched.armed(id)
	if start || end || refresh {
		t.Fatalf("after delete: start=%t end=%t refresh=%t", start, end, refresh)
	}

	if err := fx.sched.Rescan(ctx); err != nil {
		t.Fatalf("rescan after delete: %v", err)
	}
	start, end, refresh = fx.sched.armed(id)
	if start || end || refresh {
		t.Fatalf("rescan resurrected timers: start=%t end=%t refresh=%t", start, end, refresh)
	}
}

func TestEndToEndLifecycle(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{
		RefreshInterval: 25 * time.Millisecond,
		RescanInterval:  time.Hour,
		Lookahead:       25 * time.Hour,
	})
	ctx := context.Background()

	now := time.Now()
	ev := trackedEvent("Summer Cup", now.Add(60*time.Millisecond), now.Add(250*time.Millisecond))
	id, _ := fx.store.UpsertEvent(ctx, ev)
	ev.ID = id

	fx.sched.EventCreated(ctx, ev)
	start, end, _ := fx.sched.armed(id)
	if !start || !end {
		t.Fatalf("not armed: start=%t end=%t", start, end)
	}

	waitFor(t, "did-start", func() bool { return fx.rec.seen(TopicDidStart) })

	// One status and one scoreboard message for the single guild.
	waitFor(t, "posted messages", func() bool { return fx.msgs.sendCount() >= 2 })

	waitFor(t, "did-end", func() bool { return fx.rec.seen(TopicDidEnd) })
	waitFor(t, "timer table cleanup", func() bool {
		s, e, r := fx.sched.armed(id)
		return !s && !e && !r
	})

	// will-start precedes did-start, will-end precedes did-end, and the
	// start pair precedes the end pair.
	order := fx.rec.ordered()
	idx := func(topic string) int {
		for i, tp := range order {
			if tp == topic {
				return i
			}
		}
		return -1
	}
	if !(idx(TopicWillStart) < idx(TopicDidStart) &&
		idx(TopicDidStart) < idx(TopicWillEnd) &&
		idx(TopicWillEnd) < idx(TopicDidEnd)) {
		t.Fatalf("transition order: %v", order)
	}

	stored, err := fx.store.FetchEvent(ctx, id)
	if err != nil {
		t.Fatalf("fetch after end: %v", err)
	}
	acc := stored.Teams[0].Participants[0].Accounts[0]
	if acc.Starting == nil || acc.Ending == nil {
		t.Fatalf("snapshots not recorded: %+v", acc)
	}
	if v, _ := acc.Ending.Metric("skills", "woodcutting"); v != 1000 {
		t.Fatalf("ending woodcutting = %d", v)
	}
	if stored.Guilds.Creator.StatusMessage == nil || stored.Guilds.Creator.ScoreboardMessage == nil {
		t.Fatal("message references not recorded")
	}
}

func TestRefreshFailureSkipsOnlyThatAccount(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{})
	ctx := context.Background()

	now := time.Now()
	ev := trackedEvent("Mixed", now.Add(-time.Hour), now.Add(time.Hour))
	ev.Teams[0].Participants = append(ev.Teams[0].Participants, event.Participant{
		DiscordID: "user-2",
		Accounts:  []event.Account{{Name: "flaky"}},
	})
	id, _ := fx.store.UpsertEvent(ctx, ev)

	fx.stats.fails = map[string]error{"flaky": errors.New("remote down")}

	if got := fx.sched.runRefresh(ctx, id); got == nil {
		t.Fatal("refresh aborted")
	}

	stored, _ := fx.store.FetchEvent(ctx, id)
	good := stored.Teams[0].Participants[0].Accounts[0]
	bad := stored.Teams[0].Participants[1].Accounts[0]
	if good.Ending == nil || good.Starting == nil {
		t.Fatalf("healthy account not updated: %+v", good)
	}
	if bad.Ending != nil || bad.Starting != nil {
		t.Fatalf("failed account was written: %+v", bad)
	}
	if !fx.rec.seen(TopicDidUpdateScores) {
		t.Fatal("did-update-scores not published")
	}
}

func TestResumeInvalidatesOldMessagesFirst(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{RefreshInterval: time.Hour})
	ctx := context.Background()

	// A previously posted scoreboard that survived the restart.
	oldRef, err := fx.msgs.Send(ctx, "chan-1", "stale scoreboard")
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}

	now := time.Now()
	ev := trackedEvent("Resumed", now.Add(-time.Hour), now.Add(time.Hour))
	ev.Guilds.Creator.ScoreboardMessage = &event.ChannelMessage{
		ChannelID:  "chan-1",
		MessageIDs: []string{oldRef.MessageID},
	}
	id, _ := fx.store.UpsertEvent(ctx, ev)

	if err := fx.sched.Rescan(ctx); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	waitFor(t, "resume did-start", func() bool { return fx.rec.seen(TopicDidStart) })
	waitFor(t, "old message deleted", func() bool {
		fx.msgs.mu.Lock()
		defer fx.msgs.mu.Unlock()
		for _, d := range fx.msgs.deleted {
			if d == oldRef.MessageID {
				return true
			}
		}
		return false
	})

	waitFor(t, "new references persisted", func() bool {
		stored, err := fx.store.FetchEvent(ctx, id)
		if err != nil {
			return false
		}
		ref := stored.Guilds.Creator.ScoreboardMessage
		return ref != nil && len(ref.MessageIDs) == 1 && ref.MessageIDs[0] != oldRef.MessageID
	})

	// A second rescan must not resume the already running event again.
	startsBefore := len(fx.rec.ordered())
	if err := fx.sched.Rescan(ctx); err != nil {
		t.Fatalf("second rescan: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	for _, topic := range fx.rec.ordered()[startsBefore:] {
		if topic == TopicWillStart {
			t.Fatal("second rescan resumed the event again")
		}
	}
}

func TestStatusTextMentionsEventName(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{})
	ctx := context.Background()

	now := time.Now()
	ev := trackedEvent("Visible", now.Add(-time.Minute), now.Add(time.Hour))
	id, _ := fx.store.UpsertEvent(ctx, ev)
	ev.ID = id

	fx.sched.postScoreboards(ctx, ev)
	if fx.msgs.sendCount() != 2 {
		t.Fatalf("sent %d messages, want 2", fx.msgs.sendCount())
	}
	fx.msgs.mu.Lock()
	defer fx.msgs.mu.Unlock()
	for _, content := range fx.msgs.sent {
		if !strings.Contains(content, "Visible") {
			t.Fatalf("posted message without event name: %q", content)
		}
	}
}

func TestEndTransitionWritesLast(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, Config{RefreshInterval: 20 * time.Millisecond})
	ctx := context.Background()

	now := time.Now()
	ev := trackedEvent("Photo Finish", now.Add(-time.Hour), now.Add(time.Hour))
	id, _ := fx.store.UpsertEvent(ctx, ev)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fx.stats.gate = func(string) {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	fx.sched.startRefreshLoop(id)
	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("periodic refresh never reached the stats client")
	}

	// The held cycle already captured the old snapshot; every lookup
	// from here on observes the newer one.
	fx.stats.set("zezima", event.Snapshot{"skills": {"woodcutting": 5000}})

	done := make(chan struct{})
	go func() {
		fx.sched.runEnd(ctx, id)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("end transition never finished")
	}

	got, err := fx.store.FetchEvent(ctx, id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	ending := got.Teams[0].Participants[0].Accounts[0].Ending
	if v, _ := ending.Metric("skills", "woodcutting"); v != 5000 {
		t.Fatalf("stored woodcutting xp %d, want the final cycle's 5000", v)
	}

	calls := fx.stats.callCount()
	time.Sleep(60 * time.Millisecond)
	if after := fx.stats.callCount(); after != calls {
		t.Fatalf("%d lookups after the end transition, want none", after-calls)
	}
}
