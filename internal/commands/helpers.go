package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clanbot/internal/event"
	"clanbot/internal/storage"
)

const eventNotFoundPrompt = "Could not find that event. Hint: find the event id with the list events command. Please try again."

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "ok":
		return true
	default:
		return false
	}
}

// acceptedWhenLayouts are tried in order; layouts without a zone parse as UTC.
var acceptedWhenLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseWhen(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range acceptedWhenLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseTracking turns the event type answer ("skills attack strength",
// "bh", "clues hard", "boss zulrah", "custom") into a Tracking value.
func parseTracking(s string) (event.Tracking, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return event.Tracking{}, errors.New("empty event type")
	}

	rest := fields[1:]
	switch fields[0] {
	case "skills":
		if len(rest) == 0 {
			return event.Tracking{}, errors.New("skills events need at least one skill")
		}
		return checked(event.CategorySkills, rest)
	case "bh", "bountyhunter":
		if len(rest) == 0 {
			rest = event.MetricsFor(event.CategoryBountyHunter)
		}
		return checked(event.CategoryBountyHunter, rest)
	case "clues", "clue":
		if len(rest) == 0 {
			rest = []string{"all"}
		}
		return checked(event.CategoryClue, rest)
	case "boss":
		name := strings.Join(rest, " ")
		if name == "" {
			return event.Tracking{}, errors.New("boss events need a boss name")
		}
		return event.Tracking{Category: event.CategoryBoss, What: []string{name}}, nil
	case "custom":
		return event.Tracking{Category: event.CategoryCustom}, nil
	default:
		return event.Tracking{}, fmt.Errorf("unknown event type %q", fields[0])
	}
}

func checked(c event.Category, what []string) (event.Tracking, error) {
	for _, w := range what {
		if !event.ValidMetric(c, w) {
			return event.Tracking{}, fmt.Errorf("unknown %s entry %q", c, w)
		}
	}
	return event.Tracking{Category: c, What: what}, nil
}

// fetchCreatorEvent loads an event by id if the asking guild created it.
// (nil, nil) means not found, a non-nil error is a collaborator failure.
func (d *Deps) fetchCreatorEvent(ctx context.Context, id int64, guildID string) (*event.Event, error) {
	ev, err := d.Store.FetchEvent(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ev.Guilds.Creator.DiscordID != guildID {
		return nil, nil
	}
	return ev, nil
}

// fetchVisibleEvent loads an event by id if the asking guild competes in
// it (creator or invited).
func (d *Deps) fetchVisibleEvent(ctx context.Context, id int64, guildID string) (*event.Event, error) {
	ev, err := d.Store.FetchEvent(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ev.Guilds.Creator.DiscordID == guildID {
		return ev, nil
	}
	for _, g := range ev.Guilds.Others {
		if g.DiscordID == guildID {
			return ev, nil
		}
	}
	return nil, nil
}

func eventLine(ev *event.Event, now time.Time) string {
	return fmt.Sprintf("#%d %s (%s)\n\t\tstatus: %s\n\t\tstarts: %s\n\t\tends: %s",
		ev.ID, ev.Name, ev.Tracking.Category,
		ev.StatusString(now),
		ev.When.Start.UTC().Format(time.RFC1123),
		ev.When.End.UTC().Format(time.RFC1123))
}
