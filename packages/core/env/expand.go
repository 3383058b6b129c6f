package env

import (
	"os"
	"regexp"
	"sort"
)

var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// LookupFunc returns the value of a variable and whether it is set
type LookupFunc func(name string) (string, bool)

// Expand replaces ${NAME} and ${NAME:-fallback} in input. References that
// are unset and have no fallback are left as written and their names are
// returned, sorted and without duplicates.
func Expand(input string, lookup LookupFunc) (string, []string) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	missing := make(map[string]struct{})
	out := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := variablePattern.FindStringSubmatch(match)
		name, hasFallback, fallback := groups[1], groups[2] != "", groups[3]

		if value, ok := lookup(name); ok && (value != "" || !hasFallback) {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing[name] = struct{}{}
		return match
	})

	if len(missing) == 0 {
		return out, nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return out, names
}
