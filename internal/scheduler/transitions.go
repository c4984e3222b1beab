package scheduler

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"clanbot/internal/event"
	"clanbot/internal/eventbus"
	"clanbot/internal/scoreboard"
	"clanbot/internal/storage"
	"clanbot/internal/transport"
	logx "clanbot/pkg/logx"
)

// lookupConcurrency bounds the remote fan-out of one refresh cycle.
const lookupConcurrency = 8

// loadEvent fetches the authoritative event state for a transition. A
// missing id when a timer fires is an invariant violation: it is logged
// loudly and the single transition is aborted.
func (s *Scheduler) loadEvent(ctx context.Context, id int64, transition string) *event.Event {
	ev, err := s.store.FetchEvent(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Error("timer fired for unknown event",
			logx.Int64("event_id", id), logx.String("transition", transition))
		return nil
	}
	if err != nil {
		s.log.Error("event load failed",
			logx.Err(err), logx.Int64("event_id", id), logx.String("transition", transition))
		return nil
	}
	return ev
}

// runStart performs the start transition: for tracked events one
// immediate refresh and the periodic loop, then did-start posts the
// status and scoreboard messages per guild.
func (s *Scheduler) runStart(ctx context.Context, id int64) {
	s.bus.Publish(eventbus.Event{Topic: TopicWillStart, Data: id})

	ev := s.loadEvent(ctx, id, "will-start")
	if ev == nil {
		return
	}
	s.log.Info("event starting", logx.Int64("event_id", id), logx.String("name", ev.Name))

	lock := s.cycleLock(id)
	lock.Lock()
	if ev.Tracked() {
		if refreshed := s.runRefresh(ctx, id); refreshed != nil {
			ev = refreshed
		}
	}
	s.postScoreboards(ctx, ev)
	lock.Unlock()

	if ev.Tracked() {
		s.startRefreshLoop(id)
	}
	s.bus.Publish(eventbus.Event{Topic: TopicDidStart, Data: ev})
}

// runEnd performs the end transition: the periodic refresh stops before
// anything else, then a final refresh for tracked events, then did-end
// reposts the final scoreboard. The cycle lock is taken after the stop
// signal, so an in-flight periodic cycle drains before the final one and
// the final write is last.
func (s *Scheduler) runEnd(ctx context.Context, id int64) {
	s.bus.Publish(eventbus.Event{Topic: TopicWillEnd, Data: id})

	s.mu.Lock()
	if t, ok := s.timers[id]; ok {
		s.disarmLocked(t)
		delete(s.timers, id)
	}
	s.mu.Unlock()

	lock := s.cycleLock(id)
	lock.Lock()

	ev := s.loadEvent(ctx, id, "will-end")
	if ev == nil {
		lock.Unlock()
		return
	}
	s.log.Info("event ending", logx.Int64("event_id", id), logx.String("name", ev.Name))

	if ev.Tracked() {
		if refreshed := s.runRefresh(ctx, id); refreshed != nil {
			ev = refreshed
		}
	}

	s.postScoreboards(ctx, ev)
	lock.Unlock()

	s.mu.Lock()
	delete(s.cycles, id)
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{Topic: TopicDidEnd, Data: ev})
}

// startRefreshLoop arms the periodic refresh slot if it is empty.
func (s *Scheduler) startRefreshLoop(id int64) {
	s.mu.Lock()
	t := s.timers[id]
	if t == nil {
		t = &eventTimers{running: true}
		s.timers[id] = t
	}
	if t.refreshStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	t.refreshStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				lock := s.cycleLock(id)
				lock.Lock()
				// The stop signal may have arrived while waiting for the
				// lock; an ended event must not get another cycle.
				select {
				case <-stop:
					lock.Unlock()
					return
				default:
				}
				ctx := s.ctxOrBackground()
				if ev := s.runRefresh(ctx, id); ev != nil {
					s.postScoreboards(ctx, ev)
				}
				lock.Unlock()
			}
		}
	}()
}

// runRefresh is the will-update-scores → did-update-scores transition:
// one remote lookup per distinct account, issued concurrently but
// reassembled in original (team, participant, account) order before any
// write-back. A failed lookup leaves that account untouched for the
// cycle. The persisted event is returned, or nil when the cycle aborted.
func (s *Scheduler) runRefresh(ctx context.Context, id int64) *event.Event {
	s.bus.Publish(eventbus.Event{Topic: TopicWillUpdateScores, Data: id})

	ev := s.loadEvent(ctx, id, "will-update-scores")
	if ev == nil {
		return nil
	}
	if !ev.Tracked() {
		return ev
	}

	accounts := ev.Accounts()
	snapshots := make([]event.Snapshot, len(accounts))
	failures := make([]error, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, acc := range accounts {
		g.Go(func() error {
			snap, err := s.stats.Lookup(gctx, acc.Name)
			if err != nil {
				failures[i] = err
				return nil
			}
			snapshots[i] = snap
			return nil
		})
	}
	_ = g.Wait()

	for i, acc := range accounts {
		if failures[i] != nil {
			s.log.Warn("stats lookup failed, keeping previous snapshot",
				logx.Err(failures[i]), logx.Int64("event_id", id), logx.String("account", acc.Name))
			continue
		}
		acc.Ending = snapshots[i]
		if acc.Starting == nil {
			// First successful observation establishes the baseline.
			acc.Starting = snapshots[i]
		}
	}

	if _, err := s.store.UpsertEvent(ctx, ev); err != nil {
		s.log.Error("refresh persist failed", logx.Err(err), logx.Int64("event_id", id))
		return nil
	}
	s.bus.Publish(eventbus.Event{Topic: TopicDidUpdateScores, Data: ev})
	return ev
}

// postScoreboards find-and-replaces the status and scoreboard messages in
// every participating guild. Old references are invalidated before new
// ones are recorded, so a retry never leaves two live sets. Post
// failures leave that guild's reference null and move on.
func (s *Scheduler) postScoreboards(ctx context.Context, ev *event.Event) {
	now := s.now()
	board := scoreboard.Aggregate(ev)
	statusText := scoreboard.RenderStatus(ev, now)
	boardText := scoreboard.Render(ev, board, now)

	for _, g := range ev.AllGuilds() {
		if g.ChannelID == "" {
			s.log.Debug("guild has no announcement channel",
				logx.Int64("event_id", ev.ID), logx.String("guild", g.DiscordID))
			continue
		}
		g.StatusMessage = s.replaceMessage(ctx, g.StatusMessage, g.ChannelID, statusText)
		g.ScoreboardMessage = s.replaceMessage(ctx, g.ScoreboardMessage, g.ChannelID, boardText)
	}

	if _, err := s.store.UpsertEvent(ctx, ev); err != nil {
		s.log.Error("message reference persist failed", logx.Err(err), logx.Int64("event_id", ev.ID))
	}
}

// replaceMessage deletes the previously posted message if it still
// resolves, then posts the replacement. It returns the new reference, or
// nil when the post failed.
func (s *Scheduler) replaceMessage(ctx context.Context, old *event.ChannelMessage, channelID, content string) *event.ChannelMessage {
	if old != nil {
		for _, msgID := range old.MessageIDs {
			ref := transport.MessageRef{ChannelID: old.ChannelID, MessageID: msgID}
			existing, err := s.messenger.Fetch(ctx, ref)
			if err != nil {
				s.log.Warn("message fetch failed", logx.Err(err), logx.String("channel", old.ChannelID))
				continue
			}
			if existing == nil {
				continue
			}
			if err := s.messenger.Delete(ctx, ref); err != nil {
				s.log.Warn("message delete failed", logx.Err(err), logx.String("channel", old.ChannelID))
			}
		}
	}

	sent, err := s.messenger.Send(ctx, channelID, content)
	if err != nil {
		s.log.Warn("message post failed", logx.Err(err), logx.String("channel", channelID))
		return nil
	}
	return &event.ChannelMessage{ChannelID: sent.ChannelID, MessageIDs: []string{sent.MessageID}}
}
