package event

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotPersisted marks operations that require an assigned event id.
var ErrNotPersisted = errors.New("event has no assigned id")

// Status is the derived lifecycle phase of an event at a point in time.
type Status string

const (
	StatusSignups Status = "sign-ups"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// StatusAt classifies an event relative to now.
//
// Boundary rules: the start instant belongs to "active", the end instant
// belongs to "ended".
func (e *Event) StatusAt(now time.Time) Status {
	if now.Before(e.When.Start) {
		return StatusSignups
	}
	if !now.Before(e.When.End) {
		return StatusEnded
	}
	return StatusActive
}

// StatusString renders the status line used in listings and scoreboard
// headers, including remaining hours while active.
func (e *Event) StatusString(now time.Time) string {
	switch e.StatusAt(now) {
	case StatusSignups:
		return "sign-ups"
	case StatusEnded:
		return "ended"
	default:
		left := e.When.End.Sub(now).Hours()
		return fmt.Sprintf("active (%.1f hrs left)", left)
	}
}

// Custom reports whether the event has no automatic tracking.
func (e *Event) Custom() bool {
	return e.Tracking.Category == CategoryCustom
}

// Tracked reports whether the scheduler should refresh scores for this event.
// Custom events carry no metric list and are excluded from refresh entirely.
func (e *Event) Tracked() bool {
	return !e.Custom() && len(e.Tracking.What) > 0
}

// Started reports whether the event window has opened.
func (e *Event) Started(now time.Time) bool {
	return !now.Before(e.When.Start)
}

// AllGuilds returns creator followed by the invited guilds, as pointers into
// the event so message references can be recorded in place.
func (e *Event) AllGuilds() []*Guild {
	out := make([]*Guild, 0, 1+len(e.Guilds.Others))
	out = append(out, &e.Guilds.Creator)
	for i := range e.Guilds.Others {
		out = append(out, &e.Guilds.Others[i])
	}
	return out
}

// FindParticipant locates a participant by Discord id across all teams.
// The returned indexes are valid until teams are mutated.
func (e *Event) FindParticipant(discordID string) (teamIdx, partIdx int, ok bool) {
	for ti := range e.Teams {
		for pi := range e.Teams[ti].Participants {
			if e.Teams[ti].Participants[pi].DiscordID == discordID {
				return ti, pi, true
			}
		}
	}
	return 0, 0, false
}

// FindTeam locates a team by name.
func (e *Event) FindTeam(name string) (int, bool) {
	for i := range e.Teams {
		if e.Teams[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// AddParticipant signs a participant up under the named team, creating the
// team when it does not exist yet. It fails when the Discord user is already
// signed up anywhere in the event.
func (e *Event) AddParticipant(teamName, guildID string, p Participant) error {
	if _, _, ok := e.FindParticipant(p.DiscordID); ok {
		return fmt.Errorf("participant %s already signed up", p.DiscordID)
	}
	if ti, ok := e.FindTeam(teamName); ok {
		e.Teams[ti].Participants = append(e.Teams[ti].Participants, p)
		return nil
	}
	e.Teams = append(e.Teams, Team{
		Name:         teamName,
		GuildID:      guildID,
		Participants: []Participant{p},
	})
	return nil
}

// RemoveParticipant un-signs a participant. Teams left without participants
// are dropped, keeping the persistence-boundary invariant that a stored team
// has at least one member.
func (e *Event) RemoveParticipant(discordID string) bool {
	ti, pi, ok := e.FindParticipant(discordID)
	if !ok {
		return false
	}
	team := &e.Teams[ti]
	team.Participants = append(team.Participants[:pi], team.Participants[pi+1:]...)
	if len(team.Participants) == 0 {
		e.Teams = append(e.Teams[:ti], e.Teams[ti+1:]...)
	}
	return true
}

// Validate checks the in-memory invariants that hold at the persistence
// boundary.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("event name must not be empty")
	}
	if e.When.Start.After(e.When.End) {
		return errors.New("event start must not be after end")
	}
	if e.Global && !e.Locked {
		return errors.New("global events must be locked")
	}
	if e.Tracking.Category == "" {
		return errors.New("tracking category is required")
	}
	if e.Custom() && len(e.Tracking.What) > 0 {
		return errors.New("custom events carry no tracked metrics")
	}
	if !e.Custom() && len(e.Tracking.What) == 0 {
		return errors.New("tracked events need at least one metric")
	}
	seenTeams := make(map[string]struct{}, len(e.Teams))
	seenParts := map[string]struct{}{}
	for i := range e.Teams {
		t := &e.Teams[i]
		if _, dup := seenTeams[t.Name]; dup {
			return fmt.Errorf("duplicate team name %q", t.Name)
		}
		seenTeams[t.Name] = struct{}{}
		if len(t.Participants) == 0 {
			return fmt.Errorf("team %q has no participants", t.Name)
		}
		for j := range t.Participants {
			p := &t.Participants[j]
			if _, dup := seenParts[p.DiscordID]; dup {
				return fmt.Errorf("participant %s appears in more than one team", p.DiscordID)
			}
			seenParts[p.DiscordID] = struct{}{}
		}
	}
	return nil
}

// Accounts returns every tracked account across all teams as a flat,
// order-preserving list: team order, then participant order, then account
// order. Refresh cycles rely on this ordering to reassemble results.
func (e *Event) Accounts() []*Account {
	var out []*Account
	for ti := range e.Teams {
		for pi := range e.Teams[ti].Participants {
			p := &e.Teams[ti].Participants[pi]
			for ai := range p.Accounts {
				out = append(out, &p.Accounts[ai])
			}
		}
	}
	return out
}
