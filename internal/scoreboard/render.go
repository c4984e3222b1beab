package scoreboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"clanbot/internal/event"
)

const tab = "  "

// Render formats a ranked scoreboard as the plain monospace block posted to
// chat. Zero scores are rendered without a number to keep sign-up-phase
// boards quiet.
func Render(e *event.Event, teams []TeamScore, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event %s (%s)\n", e.Name, e.Tracking.Category)
	fmt.Fprintf(&b, "#%d %s %s\n", e.ID, e.When.Start.UTC().Format(time.RFC1123), e.StatusString(now))

	for i, t := range teams {
		b.WriteString("\n")
		if t.Score != 0 {
			fmt.Fprintf(&b, "%d. Team %s%s%s\n", i+1, t.Name, tab, humanize.Comma(t.Score))
		} else {
			fmt.Fprintf(&b, "%d. Team %s\n", i+1, t.Name)
		}
		for _, p := range t.Participants {
			writeParticipant(&b, p)
		}
	}

	fmt.Fprintf(&b, "\nUpdated: %s\n", now.UTC().Format(time.RFC1123))

	if e.Global {
		b.WriteString("\nCompetitors:\n")
		for _, g := range e.AllGuilds() {
			fmt.Fprintf(&b, "%s%s\n", tab, g.DiscordID)
		}
	}
	return b.String()
}

func writeParticipant(b *strings.Builder, p ParticipantScore) {
	if p.Score != 0 {
		fmt.Fprintf(b, "%s<@%s>%s%s\n", tab, p.DiscordID, tab, humanize.Comma(p.Score))
	} else {
		fmt.Fprintf(b, "%s<@%s>\n", tab, p.DiscordID)
	}
	for _, a := range p.Accounts {
		if a.Score != 0 {
			fmt.Fprintf(b, "%s%s%s%s\n", tab+tab, a.Name, tab, humanize.Comma(a.Score))
		} else {
			fmt.Fprintf(b, "%s%s\n", tab+tab, a.Name)
		}
		for _, m := range a.Metrics {
			fmt.Fprintf(b, "%s%s%s%s\n", tab+tab+tab, m.Name, tab, humanize.Comma(m.Score))
		}
	}
}

// RenderStatus formats the short status message posted alongside the
// scoreboard.
func RenderStatus(e *event.Event, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event %s (#%d)\n", e.Name, e.ID)
	fmt.Fprintf(&b, "status: %s\n", e.StatusString(now))
	fmt.Fprintf(&b, "starts: %s\n", e.When.Start.UTC().Format(time.RFC1123))
	fmt.Fprintf(&b, "ends: %s\n", e.When.End.UTC().Format(time.RFC1123))
	return b.String()
}
