package commands

import (
	"context"
	"fmt"
	"strings"

	"clanbot/internal/event"
	"clanbot/internal/transport"
	logx "clanbot/pkg/logx"
)

func (r *Router) listAll(ctx context.Context, msg *transport.Message) string {
	events, err := r.deps.Store.FetchGuildEvents(ctx, msg.GuildID)
	if err != nil {
		r.log.Error("list all failed", logx.Err(err))
		return "Could not list events right now."
	}
	if len(events) == 0 {
		return "No events."
	}

	now := r.deps.now()
	var b strings.Builder
	b.WriteString("Your guild events:\n")
	for _, ev := range events {
		b.WriteString("\t" + eventLine(ev, now) + "\n")
	}
	return b.String()
}

func (r *Router) listActive(ctx context.Context, msg *transport.Message) string {
	now := r.deps.now()
	events, err := r.deps.Store.FetchGuildEventsBetween(ctx, msg.GuildID, now, now)
	if err != nil {
		r.log.Error("list active failed", logx.Err(err))
		return "Could not list events right now."
	}

	var lines []string
	for _, ev := range events {
		if ev.StatusAt(now) == event.StatusActive {
			lines = append(lines, "\t"+eventLine(ev, now))
		}
	}
	if len(lines) == 0 {
		return "No active events."
	}
	return "Active events:\n" + strings.Join(lines, "\n")
}

func (r *Router) listParticipants(ctx context.Context, msg *transport.Message, params Params) string {
	id, ok := params.Int("id")
	if !ok {
		return descriptors[cmdUsersListParts].Usage(r.prefix)
	}
	ev, err := r.deps.fetchVisibleEvent(ctx, id, msg.GuildID)
	if err != nil {
		r.log.Error("list participants failed", logx.Err(err))
		return "Could not list participants right now."
	}
	if ev == nil {
		return "No event with that id."
	}
	if len(ev.Teams) == 0 {
		return fmt.Sprintf("Nobody is signed up for %s yet.", ev.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Signed up for %s:\n", ev.Name)
	for _, team := range ev.Teams {
		fmt.Fprintf(&b, "\tTeam %s:\n", team.Name)
		for _, p := range team.Participants {
			names := make([]string, 0, len(p.Accounts))
			for _, a := range p.Accounts {
				names = append(names, a.Name)
			}
			if len(names) == 0 {
				fmt.Fprintf(&b, "\t\t<@%s>\n", p.DiscordID)
				continue
			}
			fmt.Fprintf(&b, "\t\t<@%s> (%s)\n", p.DiscordID, strings.Join(names, ", "))
		}
	}
	return b.String()
}

func (r *Router) amISignedUp(ctx context.Context, msg *transport.Message, params Params) string {
	id, ok := params.Int("id")
	if !ok {
		return descriptors[cmdUsersAmISignedUp].Usage(r.prefix)
	}
	ev, err := r.deps.fetchVisibleEvent(ctx, id, msg.GuildID)
	if err != nil {
		r.log.Error("amisignedup failed", logx.Err(err))
		return "Could not check right now."
	}
	if ev == nil {
		return "No event with that id."
	}
	if ti, _, ok := ev.FindParticipant(msg.AuthorID); ok {
		return fmt.Sprintf("You are signed up for %s on team %s.", ev.Name, ev.Teams[ti].Name)
	}
	return fmt.Sprintf("You are not signed up for %s.", ev.Name)
}
