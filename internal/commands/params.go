package commands

import (
	"regexp"
	"strconv"
	"strings"
)

// ParamType is the declared type of a named command parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
	ParamBool   ParamType = "bool"
)

// ParamSpec declares one named parameter of a command.
type ParamSpec struct {
	Name        string
	Description string
	Usage       string
	Type        ParamType
	Required    bool
	// Default is the raw fallback for an absent optional parameter.
	// Empty means no default: the parameter is simply missing.
	Default string
}

// Params holds the extracted raw values keyed by parameter name. Absent
// keys are not present in the map; callers distinguish "missing" from
// "empty" through Has.
type Params map[string]string

func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p Params) String(key string) string { return p[key] }

// Int parses a number parameter. The second return is false when the key
// is absent or not an integer.
func (p Params) Int(key string) (int64, bool) {
	raw, ok := p[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Bool interprets a bool parameter: absent, "false" and "no" are false,
// anything else present is true.
func (p Params) Bool(key string) bool {
	raw, ok := p[key]
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "false", "no":
		return false
	default:
		return true
	}
}

// ParseParameters extracts key=value pairs from free text. A value runs
// from its key= anchor up to the next declared key= anchor or the end of
// the text, so multi-word values need no quoting. Absent optional
// parameters fall back to their declared default; absent parameters with
// no default stay missing.
func ParseParameters(specs []ParamSpec, text string) Params {
	out := make(Params, len(specs))
	if len(specs) == 0 {
		return out
	}

	anchors := make([]string, len(specs))
	for i, s := range specs {
		anchors[i] = regexp.QuoteMeta(s.Name)
	}

	for i, s := range specs {
		others := make([]string, 0, len(anchors)-1)
		for j, a := range anchors {
			if j != i {
				others = append(others, a+"=")
			}
		}
		stop := "$"
		if len(others) > 0 {
			stop = strings.Join(others, "|") + "|$"
		}
		re := regexp.MustCompile(`(?is)` + anchors[i] + `=(.*?)(?:` + stop + `)`)

		m := re.FindStringSubmatch(text)
		if m == nil {
			if s.Default != "" {
				out[s.Name] = s.Default
			}
			continue
		}
		out[s.Name] = strings.TrimSpace(m[1])
	}
	return out
}
