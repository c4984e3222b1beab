// Package scoreboard reduces an event's team hierarchy into ranked totals.
//
// Aggregation is pure: given the same snapshot data it produces the same
// ordered tree, and ties keep their input order (stable sort), so rank order
// never depends on lookup completion order or sort internals.
package scoreboard

import (
	"sort"

	"clanbot/internal/event"
)

// MetricScore is one tracked metric's delta for one account.
type MetricScore struct {
	Name  string
	Score int64
}

// AccountScore carries an account total plus its per-metric breakdown.
// Metrics is nil for custom events.
type AccountScore struct {
	Name    string
	Score   int64
	Metrics []MetricScore
}

// ParticipantScore carries a participant total: account totals plus the
// admin-adjustable custom offset.
type ParticipantScore struct {
	DiscordID   string
	CustomScore int64
	Score       int64
	Accounts    []AccountScore
}

// TeamScore is the top of the ranked tree.
type TeamScore struct {
	Name         string
	Score        int64
	Participants []ParticipantScore
}

// Aggregate scores an event. Teams, participants, accounts and metrics are
// each sorted descending by score, ties broken by original order. An event
// with zero teams yields an empty list.
func Aggregate(e *event.Event) []TeamScore {
	teams := make([]TeamScore, 0, len(e.Teams))
	for ti := range e.Teams {
		teams = append(teams, aggregateTeam(e, &e.Teams[ti]))
	}
	sort.SliceStable(teams, func(i, j int) bool { return teams[i].Score > teams[j].Score })
	return teams
}

func aggregateTeam(e *event.Event, t *event.Team) TeamScore {
	ts := TeamScore{Name: t.Name, Participants: make([]ParticipantScore, 0, len(t.Participants))}
	for pi := range t.Participants {
		ps := aggregateParticipant(e, &t.Participants[pi])
		ts.Score += ps.Score
		ts.Participants = append(ts.Participants, ps)
	}
	sort.SliceStable(ts.Participants, func(i, j int) bool {
		return ts.Participants[i].Score > ts.Participants[j].Score
	})
	return ts
}

func aggregateParticipant(e *event.Event, p *event.Participant) ParticipantScore {
	ps := ParticipantScore{
		DiscordID:   p.DiscordID,
		CustomScore: p.CustomScore,
		Score:       p.CustomScore,
		Accounts:    make([]AccountScore, 0, len(p.Accounts)),
	}
	for ai := range p.Accounts {
		as := aggregateAccount(e, &p.Accounts[ai])
		ps.Score += as.Score
		ps.Accounts = append(ps.Accounts, as)
	}
	sort.SliceStable(ps.Accounts, func(i, j int) bool {
		return ps.Accounts[i].Score > ps.Accounts[j].Score
	})
	return ps
}

func aggregateAccount(e *event.Event, a *event.Account) AccountScore {
	as := AccountScore{Name: a.Name}
	if e.Custom() {
		return as
	}
	cat := string(e.Tracking.Category)
	as.Metrics = make([]MetricScore, 0, len(e.Tracking.What))
	for _, w := range e.Tracking.What {
		as.Metrics = append(as.Metrics, MetricScore{Name: w, Score: metricScore(a, cat, w)})
	}
	sort.SliceStable(as.Metrics, func(i, j int) bool {
		return as.Metrics[i].Score > as.Metrics[j].Score
	})
	for _, m := range as.Metrics {
		as.Score += m.Score
	}
	return as
}

// metricScore computes ending - starting for one metric. A metric present
// only in the ending snapshot (newly appeared category/activity) counts from
// a cold-start baseline of zero; a metric with no ending data scores zero.
func metricScore(a *event.Account, category, metric string) int64 {
	end, ok := a.Ending.Metric(category, metric)
	if !ok {
		return 0
	}
	start, ok := a.Starting.Metric(category, metric)
	if !ok {
		return end
	}
	return end - start
}
