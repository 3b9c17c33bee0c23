package parse

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var nameRe = regexp.MustCompile(`^([A-Za-z]+)\s*-?\s*(\d*)$`)

// ParsedName holds the structured data parsed from a cubicle's name.
type ParsedName struct {
	Prefix string
	Seq    int
}

// ParseName splits a cubicle name such as "A1", "a-12" or "B" into its letter
// prefix (upper-cased) and sequence number. A missing number yields Seq 0.
func ParseName(raw string) (ParsedName, error) {
	s := strings.TrimSpace(raw)
	m := nameRe.FindStringSubmatch(s)
	if m == nil {
		return ParsedName{}, fmt.Errorf("unable to parse cubicle name: %q", raw)
	}

	seq := 0
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return ParsedName{}, fmt.Errorf("unable to parse sequence of cubicle name %q: %w", raw, err)
		}
		seq = n
	}
	return ParsedName{Prefix: strings.ToUpper(m[1]), Seq: seq}, nil
}

// Classes maps cubicle name prefixes to vehicle classes, e.g. "A" -> "CARRO".
type Classes map[string]string

// ClassOf infers the vehicle class of a cubicle from its name. The longest
// matching prefix wins so that "AB" can be told apart from "A".
func (c Classes) ClassOf(name string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	best := ""
	for prefix := range c {
		p := strings.ToUpper(prefix)
		if strings.HasPrefix(upper, p) && len(p) > len(best) {
			best = p
		}
	}
	if best == "" {
		return "", false
	}
	for prefix, class := range c {
		if strings.ToUpper(prefix) == best {
			return class, true
		}
	}
	return "", false
}

// PrefixesFor returns the name prefixes mapped to class, sorted.
func (c Classes) PrefixesFor(class string) []string {
	var out []string
	for prefix, cl := range c {
		if strings.EqualFold(cl, class) {
			out = append(out, strings.ToUpper(prefix))
		}
	}
	sort.Strings(out)
	return out
}

// ShadowedBy returns the longer prefixes of other classes that start with
// prefix, sorted. A name under one of them belongs to that other class.
func (c Classes) ShadowedBy(prefix, class string) []string {
	prefix = strings.ToUpper(prefix)
	var out []string
	for p, cl := range c {
		p = strings.ToUpper(p)
		if len(p) > len(prefix) && strings.HasPrefix(p, prefix) && !strings.EqualFold(cl, class) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// CodePrefix returns the letter used in a display code for the cubicle name,
// falling back to "X" when the name has no letter prefix.
func CodePrefix(name string) string {
	parsed, err := ParseName(name)
	if err != nil || parsed.Prefix == "" {
		return "X"
	}
	return parsed.Prefix
}

// DisplayCode derives the human-facing code of a billing record, e.g. "A-007".
func DisplayCode(prefix string, recordID int64) string {
	return fmt.Sprintf("%s-%03d", prefix, recordID)
}
