package event

import (
	"time"
)

// Category is the statistic domain an event measures.
type Category string

const (
	CategorySkills       Category = "skills"
	CategoryBoss         Category = "boss"
	CategoryBountyHunter Category = "bountyHunter"
	CategoryClue         Category = "clue"
	CategoryCustom       Category = "custom"
)

// Categories lists every valid tracking category, in display order.
func Categories() []Category {
	return []Category{
		CategorySkills,
		CategoryBoss,
		CategoryBountyHunter,
		CategoryClue,
		CategoryCustom,
	}
}

// ParseCategory maps free-form user input to a Category.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategorySkills, CategoryBoss, CategoryBountyHunter, CategoryClue, CategoryCustom:
		return Category(s), true
	}
	return "", false
}

// Snapshot is a point-in-time capture of a tracked account's external
// statistics, normalized to category -> metric -> value.
//
// For skills the value is xp; for everything else it is the reported score.
// A nil Snapshot means "never captured".
type Snapshot map[string]map[string]int64

// Metric returns the value for (category, metric) and whether it is present.
func (s Snapshot) Metric(category, metric string) (int64, bool) {
	if s == nil {
		return 0, false
	}
	m, ok := s[category]
	if !ok {
		return 0, false
	}
	v, ok := m[metric]
	return v, ok
}

// Account is one tracked game account belonging to a participant.
//
// Starting is backfilled from the first Ending observed: the first successful
// refresh after sign-up establishes the baseline.
type Account struct {
	Name     string   `json:"name"`
	Starting Snapshot `json:"starting,omitempty"`
	Ending   Snapshot `json:"ending,omitempty"`
}

// Participant is one Discord user competing in an event.
type Participant struct {
	DiscordID   string    `json:"discordId"`
	CustomScore int64     `json:"customScore"`
	Accounts    []Account `json:"accounts"`
}

// Team groups participants; team names are unique within their event.
type Team struct {
	Name         string        `json:"name"`
	GuildID      string        `json:"guildId"`
	Participants []Participant `json:"participants"`
}

// ChannelMessage references previously posted status/scoreboard messages so
// they can be found and replaced.
type ChannelMessage struct {
	ChannelID  string   `json:"channelId"`
	MessageIDs []string `json:"messageIds"`
}

// Guild is one Discord guild participating in an event, with the
// announcements channel and the message references it owns.
type Guild struct {
	DiscordID         string          `json:"discordId"`
	ChannelID         string          `json:"channelId,omitempty"`
	StatusMessage     *ChannelMessage `json:"statusMessage,omitempty"`
	ScoreboardMessage *ChannelMessage `json:"scoreboardMessage,omitempty"`
}

// CompetingGuilds tracks the creator guild plus any invited guilds.
type CompetingGuilds struct {
	Creator Guild   `json:"creator"`
	Others  []Guild `json:"others,omitempty"`
}

// When is the event window. Start must not be after End.
type When struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Tracking describes what the event measures. What is absent for custom
// events.
type Tracking struct {
	Category Category `json:"category"`
	What     []string `json:"what,omitempty"`
}

// Event is a scheduled, trackable competition.
//
// ID is zero until the event is first persisted. A global event is always
// locked.
type Event struct {
	ID       int64           `json:"id,omitempty"`
	Name     string          `json:"name"`
	When     When            `json:"when"`
	Tracking Tracking        `json:"tracking"`
	Teams    []Team          `json:"teams"`
	Global   bool            `json:"global"`
	Guilds   CompetingGuilds `json:"guilds"`
	Locked   bool            `json:"locked"`
}
