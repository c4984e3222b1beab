package hiscores

import (
	"strings"

	"clanbot/internal/event"
)

// normalize folds the hiscores payload into category -> metric -> value.
// Unranked entries (value < 0) are dropped so they read as "metric absent"
// and score from a cold-start baseline once ranked.
func normalize(lite liteResponse) event.Snapshot {
	snap := event.Snapshot{}

	put := func(category, metric string, v int64) {
		if v < 0 {
			return
		}
		m := snap[category]
		if m == nil {
			m = map[string]int64{}
			snap[category] = m
		}
		m[metric] = v
	}

	for _, s := range lite.Skills {
		name := skillMetricName(s.Name)
		if name == "" {
			continue
		}
		put(string(event.CategorySkills), name, s.XP)
	}

	for _, a := range lite.Activities {
		category, metric := classifyActivity(a.Name)
		if category == "" {
			continue
		}
		put(category, metric, a.Score)
	}
	return snap
}

func skillMetricName(apiName string) string {
	name := strings.ToLower(strings.TrimSpace(apiName))
	switch name {
	case "", "overall":
		return ""
	case "defence":
		return "defense"
	default:
		return name
	}
}

// classifyActivity buckets a hiscores activity row into one of the tracking
// categories. Anything that is neither a clue tier nor bounty hunter is a
// boss, which keeps the boss list open-ended as new ones are released.
// Metric names are lowercased across all categories so they compare equal
// to the lowercased user input in Tracking.What.
func classifyActivity(apiName string) (category, metric string) {
	name := strings.TrimSpace(apiName)
	switch {
	case strings.HasPrefix(name, "Clue Scrolls ("):
		tier := strings.TrimSuffix(strings.TrimPrefix(name, "Clue Scrolls ("), ")")
		return string(event.CategoryClue), strings.ToLower(tier)
	case strings.HasPrefix(name, "Bounty Hunter - "):
		role := strings.TrimPrefix(name, "Bounty Hunter - ")
		return string(event.CategoryBountyHunter), strings.ToLower(role)
	case name == "":
		return "", ""
	default:
		return string(event.CategoryBoss), strings.ToLower(name)
	}
}
