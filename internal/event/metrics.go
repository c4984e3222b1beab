package event

import "strings"

// Known metric names per tracking category, as reported by the hiscores API.

var skillMetrics = []string{
	"attack", "strength", "defense", "ranged", "prayer", "magic",
	"runecraft", "construction", "hitpoints", "agility", "herblore",
	"thieving", "crafting", "fletching", "slayer", "hunter", "mining",
	"smithing", "fishing", "cooking", "firemaking", "woodcutting", "farming",
}

var bountyHunterMetrics = []string{"rogue", "hunter"}

var clueMetrics = []string{"all", "beginner", "easy", "medium", "hard", "elite", "master"}

// MetricsFor returns the closed metric set for a category, or nil when any
// name is accepted (bosses rotate in and out of the hiscores, so the boss
// list is open-ended).
func MetricsFor(c Category) []string {
	switch c {
	case CategorySkills:
		return skillMetrics
	case CategoryBountyHunter:
		return bountyHunterMetrics
	case CategoryClue:
		return clueMetrics
	default:
		return nil
	}
}

// ValidMetric reports whether name is acceptable for the category.
func ValidMetric(c Category, name string) bool {
	if c == CategoryCustom {
		return false
	}
	allowed := MetricsFor(c)
	if allowed == nil {
		return strings.TrimSpace(name) != ""
	}
	for _, m := range allowed {
		if m == name {
			return true
		}
	}
	return false
}
