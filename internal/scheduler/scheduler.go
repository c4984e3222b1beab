package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"clanbot/internal/event"
	"clanbot/internal/eventbus"
	"clanbot/internal/hiscores"
	"clanbot/internal/storage"
	"clanbot/internal/transport"
	logx "clanbot/pkg/logx"
)

// Bus topics, one will/did pair per transition. The will payload is the
// event id; the did payload is the loaded *event.Event.
const (
	TopicWillStart        = "event.will-start"
	TopicDidStart         = "event.did-start"
	TopicWillEnd          = "event.will-end"
	TopicDidEnd           = "event.did-end"
	TopicWillUpdateScores = "event.will-update-scores"
	TopicDidUpdateScores  = "event.did-update-scores"
)

type Config struct {
	// RefreshInterval is the periodic score refresh cadence for tracked
	// active events.
	RefreshInterval time.Duration
	// RescanInterval is how often the store is rescanned for boundaries
	// to arm; Lookahead is how far ahead the rescan looks. Lookahead must
	// exceed RescanInterval or boundaries could slip between scans.
	RescanInterval time.Duration
	Lookahead      time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.RefreshInterval <= 0 {
		out.RefreshInterval = 10 * time.Minute
	}
	if out.RescanInterval <= 0 {
		out.RescanInterval = 24 * time.Hour
	}
	if out.Lookahead <= 0 {
		out.Lookahead = 25 * time.Hour
	}
	return out
}

// eventTimers is the per-event slot set: at most one armed start timer,
// one armed end timer and one running refresh loop at any time.
type eventTimers struct {
	start       *time.Timer
	end         *time.Timer
	refreshStop chan struct{}
	// running marks an event whose start transition has already fired, so
	// a later rescan does not resume it a second time.
	running bool
}

// Scheduler drives event lifecycle transitions. The timer table holds
// weak references only (ids); the authoritative event state is reloaded
// from the store at every transition.
type Scheduler struct {
	cfg       Config
	store     storage.Store
	stats     hiscores.Client
	bus       eventbus.Bus
	messenger transport.Messenger
	log       logx.Logger
	now       func() time.Time

	cron *cron.Cron

	mu     sync.Mutex
	timers map[int64]*eventTimers
	// cycles serializes refresh-and-post cycles per event so an in-flight
	// periodic cycle can never write over the end transition's final one.
	cycles map[int64]*sync.Mutex

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, store storage.Store, stats hiscores.Client, bus eventbus.Bus, messenger transport.Messenger, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:       cfg.withDefaults(),
		store:     store,
		stats:     stats,
		bus:       bus,
		messenger: messenger,
		log:       log,
		now:       time.Now,
		timers:    make(map[int64]*eventTimers),
		cycles:    make(map[int64]*sync.Mutex),
	}
}

// cycleLock returns the per-event refresh cycle lock, creating it on first
// use. Holders run one full refresh-and-post cycle at a time.
func (s *Scheduler) cycleLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.cycles[id]
	if m == nil {
		m = &sync.Mutex{}
		s.cycles[id] = m
	}
	return m
}

// Start runs an immediate rescan (which also resumes events already
// inside their window) and schedules the periodic one.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))

	if err := s.Rescan(ctx); err != nil {
		return fmt.Errorf("initial rescan: %w", err)
	}

	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.RescanInterval)
	if _, err := s.cron.AddFunc(spec, func() {
		if err := s.Rescan(s.runCtx); err != nil {
			s.log.Error("rescan failed", logx.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("rescan schedule: %w", err)
	}
	s.cron.Start()
	s.log.Info("scheduler started",
		logx.Duration("refresh", s.cfg.RefreshInterval),
		logx.Duration("rescan", s.cfg.RescanInterval),
		logx.Duration("lookahead", s.cfg.Lookahead))
	return nil
}

// Stop cancels the rescan schedule and disarms every timer.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron != nil {
		cronCtx := s.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}
	if s.runCancel != nil {
		s.runCancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		s.disarmLocked(t)
		delete(s.timers, id)
	}
	return nil
}

// Rescan arms one timer per boundary falling inside the lookahead window.
// Re-running it is idempotent: already armed slots are left untouched.
// Events already inside [start, end) are resumed through will-start.
func (s *Scheduler) Rescan(ctx context.Context) error {
	now := s.now()
	events, err := s.store.FetchEventsBetween(ctx, now, now.Add(s.cfg.Lookahead))
	if err != nil {
		return err
	}
	for _, ev := range events {
		s.arm(ev)
	}
	return nil
}

// EventCreated arms timers for a freshly persisted event. An event whose
// window already contains now starts immediately.
func (s *Scheduler) EventCreated(ctx context.Context, ev *event.Event) {
	s.arm(ev)
}

// EventDeleted atomically removes every armed timer for the id. A timer
// already past its trigger will still find the event gone and abort.
func (s *Scheduler) EventDeleted(ctx context.Context, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		s.disarmLocked(t)
		delete(s.timers, id)
	}
}

// EndNow pushes an event through its end transition immediately. The
// caller has already moved When.End and persisted.
func (s *Scheduler) EndNow(ctx context.Context, ev *event.Event) {
	s.runEnd(ctx, ev.ID)
}

// arm fills empty timer slots for boundaries within the lookahead window
// and resumes running events.
func (s *Scheduler) arm(ev *event.Event) {
	if ev.ID == 0 {
		s.log.Error("refusing to arm an unpersisted event", logx.String("name", ev.Name))
		return
	}
	now := s.now()
	horizon := now.Add(s.cfg.Lookahead)
	id := ev.ID

	resume := false

	s.mu.Lock()
	t := s.timers[id]
	if t == nil {
		t = &eventTimers{}
		s.timers[id] = t
	}
	if ev.When.Start.After(now) && !ev.When.Start.After(horizon) && t.start == nil {
		t.start = time.AfterFunc(ev.When.Start.Sub(now), func() { s.fireStart(id) })
	}
	if ev.When.End.After(now) && !ev.When.End.After(horizon) && t.end == nil {
		t.end = time.AfterFunc(ev.When.End.Sub(now), func() { s.fireEnd(id) })
	}
	if !ev.When.Start.After(now) && ev.When.End.After(now) && !t.running {
		t.running = true
		resume = true
	}
	s.mu.Unlock()

	if resume {
		go s.runStart(s.ctxOrBackground(), id)
	}
}

func (s *Scheduler) fireStart(id int64) {
	s.mu.Lock()
	t, ok := s.timers[id]
	if ok {
		t.start = nil
		t.running = true
	}
	s.mu.Unlock()
	if !ok {
		// Deleted between trigger and firing.
		return
	}
	s.runStart(s.ctxOrBackground(), id)
}

func (s *Scheduler) fireEnd(id int64) {
	s.mu.Lock()
	_, ok := s.timers[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.runEnd(s.ctxOrBackground(), id)
}

// disarmLocked stops every slot. Callers hold s.mu.
func (s *Scheduler) disarmLocked(t *eventTimers) {
	if t.start != nil {
		t.start.Stop()
		t.start = nil
	}
	if t.end != nil {
		t.end.Stop()
		t.end = nil
	}
	if t.refreshStop != nil {
		close(t.refreshStop)
		t.refreshStop = nil
	}
}

func (s *Scheduler) ctxOrBackground() context.Context {
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

// armed reports the slot state for an id.
func (s *Scheduler) armed(id int64) (start, end, refresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return false, false, false
	}
	return t.start != nil, t.end != nil, t.refreshStop != nil
}
