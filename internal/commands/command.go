package commands

import (
	"fmt"
	"sort"
	"strings"
)

// Access gates who may run a command.
type Access int

const (
	AccessAny Access = iota
	AccessAdmin
)

func (a Access) String() string {
	if a == AccessAdmin {
		return "Admins or the 'event manager' role only."
	}
	return "Any user."
}

// Descriptor declares one chat command. Trigger is matched as a
// case-insensitive prefix of the message text after the command prefix.
type Descriptor struct {
	Trigger     string
	Description string
	Access      Access
	Params      []ParamSpec
}

// Usage renders the one-line usage string for the command, marking
// optional parameters with a trailing question mark.
func (d Descriptor) Usage(prefix string) string {
	var b strings.Builder
	b.WriteString("Usage: ")
	b.WriteString(prefix)
	b.WriteString(d.Trigger)
	for _, p := range d.Params {
		if p.Required {
			fmt.Fprintf(&b, " %s=(%s)", p.Name, p.Usage)
		} else {
			fmt.Fprintf(&b, " %s?=(%s)", p.Name, p.Usage)
		}
	}
	return b.String()
}

// Parse extracts the command's declared parameters from the message text.
func (d Descriptor) Parse(text string) Params {
	return ParseParameters(d.Params, text)
}

// Command names. The triggers follow the original surface: event
// lifecycle under "events", sign-up flows under "users".
const (
	cmdEventsAdd          = "events add"
	cmdEventsDelete       = "events delete"
	cmdEventsEdit         = "events edit"
	cmdEventsEnd          = "events end"
	cmdEventsUnlock       = "events unlock"
	cmdEventsListAll      = "events list all"
	cmdEventsListActive   = "events list active"
	cmdEventsForceSignup  = "events force signup"
	cmdEventsForceUnsign  = "events force unsignup"
	cmdEventsUpdateScore  = "events update score"
	cmdUsersSignup        = "users signup"
	cmdUsersUnsignup      = "users unsignup"
	cmdUsersListParts     = "users list participants"
	cmdUsersAmISignedUp   = "users amisignedup"
	cmdHelp               = "help"
)

var paramEventID = ParamSpec{
	Name:        "id",
	Description: "The event's id.",
	Usage:       "event id",
	Type:        ParamNumber,
	Required:    false,
}

// descriptors is the full command table, keyed by trigger.
var descriptors = map[string]Descriptor{
	cmdEventsAdd: {
		Trigger:     cmdEventsAdd,
		Description: "Schedules a new uniquely named event.",
		Access:      AccessAdmin,
		Params: []ParamSpec{
			{Name: "name", Description: "The event's name.", Usage: "event name", Type: ParamString, Required: true},
			{Name: "starting", Description: "A date in ISO 8601 format of when to start.", Usage: "start date", Type: ParamString},
			{Name: "ending", Description: "A date in ISO 8601 format of when to end.", Usage: "end date", Type: ParamString},
			{Name: "type", Description: "The type of event to schedule.", Usage: "skills skill1 skill2... OR bh OR clues difficulty1... OR boss name OR custom", Type: ParamString, Required: true},
			{Name: "global", Description: "Cross-guild event, locked on creation.", Usage: "yes or no", Type: ParamBool, Default: "no"},
		},
	},
	cmdEventsDelete: {
		Trigger:     cmdEventsDelete,
		Description: "Deletes an event.",
		Access:      AccessAdmin,
		Params:      []ParamSpec{paramEventID},
	},
	cmdEventsEdit: {
		Trigger:     cmdEventsEdit,
		Description: "Renames an event that has not started yet.",
		Access:      AccessAdmin,
		Params: []ParamSpec{
			paramEventID,
			{Name: "name", Description: "The new name.", Usage: "event name", Type: ParamString},
		},
	},
	cmdEventsEnd: {
		Trigger:     cmdEventsEnd,
		Description: "Ends an event immediately.",
		Access:      AccessAdmin,
		Params:      []ParamSpec{paramEventID},
	},
	cmdEventsUnlock: {
		Trigger:     cmdEventsUnlock,
		Description: "Unlocks an event for sign-ups.",
		Access:      AccessAdmin,
		Params:      []ParamSpec{paramEventID},
	},
	cmdEventsListAll: {
		Trigger:     cmdEventsListAll,
		Description: "Lists all of this guild's events.",
		Access:      AccessAny,
	},
	cmdEventsListActive: {
		Trigger:     cmdEventsListActive,
		Description: "Lists currently active events.",
		Access:      AccessAny,
	},
	cmdEventsForceSignup: {
		Trigger:     cmdEventsForceSignup,
		Description: "Forces a mentioned user to sign up for an event.",
		Access:      AccessAdmin,
		Params: []ParamSpec{
			paramEventID,
			{Name: "rsn", Description: "The account name to sign up.", Usage: "the RSN", Type: ParamString, Required: true},
			{Name: "team", Description: "The team to join.", Usage: "team name", Type: ParamString},
		},
	},
	cmdEventsForceUnsign: {
		Trigger:     cmdEventsForceUnsign,
		Description: "Forces a mentioned user off an event.",
		Access:      AccessAdmin,
		Params:      []ParamSpec{paramEventID},
	},
	cmdEventsUpdateScore: {
		Trigger:     cmdEventsUpdateScore,
		Description: "Adds to a mentioned user's manual score.",
		Access:      AccessAdmin,
		Params: []ParamSpec{
			paramEventID,
			{Name: "score", Description: "The score to add.", Usage: "+/-score", Type: ParamNumber, Required: true},
		},
	},
	cmdUsersSignup: {
		Trigger:     cmdUsersSignup,
		Description: "Signs you up for an event.",
		Access:      AccessAny,
		Params: []ParamSpec{
			paramEventID,
			{Name: "rsn", Description: "The account name to sign up.", Usage: "your RSN", Type: ParamString},
			{Name: "team", Description: "The team to join.", Usage: "team name", Type: ParamString},
		},
	},
	cmdUsersUnsignup: {
		Trigger:     cmdUsersUnsignup,
		Description: "Removes you from an event.",
		Access:      AccessAny,
		Params:      []ParamSpec{paramEventID},
	},
	cmdUsersListParts: {
		Trigger:     cmdUsersListParts,
		Description: "Lists everyone signed up for an event.",
		Access:      AccessAny,
		Params:      []ParamSpec{paramEventID},
	},
	cmdUsersAmISignedUp: {
		Trigger:     cmdUsersAmISignedUp,
		Description: "Tells you whether you are signed up for an event.",
		Access:      AccessAny,
		Params:      []ParamSpec{paramEventID},
	},
	cmdHelp: {
		Trigger:     cmdHelp,
		Description: "Prints this help.",
		Access:      AccessAny,
	},
}

// orderedTriggers returns triggers longest-first so that prefix matching
// never stops at a shorter command that prefixes a longer one.
func orderedTriggers() []string {
	out := make([]string, 0, len(descriptors))
	for t := range descriptors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// HelpText renders the command reference, hiding admin commands from
// non-admin readers.
func HelpText(prefix string, admin bool) string {
	var b strings.Builder
	for _, trigger := range alphabeticalTriggers() {
		d := descriptors[trigger]
		if d.Access == AccessAdmin && !admin {
			continue
		}
		fmt.Fprintf(&b, "%s%s\n\t%s\n", prefix, d.Trigger, d.Description)
		if len(d.Params) > 0 {
			for _, p := range d.Params {
				fmt.Fprintf(&b, "\t\t%s: %s Required: %t.\n", p.Name, p.Description, p.Required)
			}
			fmt.Fprintf(&b, "\t%s\n", d.Usage(prefix))
		}
		fmt.Fprintf(&b, "\t%s\n", d.Access)
	}
	return b.String()
}

func alphabeticalTriggers() []string {
	out := make([]string, 0, len(descriptors))
	for t := range descriptors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
