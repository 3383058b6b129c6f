package env

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadDotEnv reads the .env file at path, see ParseDotEnv.
func LoadDotEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open env file: %w", err)
	}
	defer file.Close()

	vars, err := ParseDotEnv(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vars, nil
}

// ParseDotEnv reads KEY=value lines, optionally prefixed with "export ".
// Blank lines and lines starting with # are ignored.
//
// Single-quoted values are taken literally. Double-quoted and bare values may
// reference keys defined above them, or the environment, as ${NAME} or
// ${NAME:-fallback}; a bare value ends at " #". Keys must be usable in a
// ${NAME} reference.
func ParseDotEnv(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	lookup := func(name string) (string, bool) {
		if v, ok := vars[name]; ok {
			return v, true
		}
		return os.LookupEnv(name)
	}

	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, raw, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("line %d: expected KEY=value", n)
		}
		key = strings.TrimSpace(key)
		if !namePattern.MatchString(key) {
			return nil, fmt.Errorf("line %d: invalid variable name %q", n, key)
		}

		value, literal := unquote(strings.TrimSpace(raw))
		if !literal {
			var missing []string
			value, missing = Expand(value, lookup)
			if len(missing) > 0 {
				return nil, fmt.Errorf("line %d: unset variables: %s", n, strings.Join(missing, ", "))
			}
		}
		vars[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	return vars, nil
}

// unquote strips surrounding quotes and trailing comments. literal is true
// for single-quoted values.
func unquote(v string) (value string, literal bool) {
	if len(v) >= 2 {
		switch {
		case v[0] == '\'' && v[len(v)-1] == '\'':
			return v[1 : len(v)-1], true
		case v[0] == '"' && v[len(v)-1] == '"':
			return v[1 : len(v)-1], false
		}
	}
	if i := strings.Index(v, " #"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v, false
}

// LoadAndExportDotEnv loads the .env file at path and sets every variable the
// environment does not already define. It returns the exported names, sorted.
func LoadAndExportDotEnv(path string) ([]string, error) {
	vars, err := LoadDotEnv(path)
	if err != nil {
		return nil, err
	}

	var exported []string
	for k, v := range vars {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return nil, fmt.Errorf("export %s: %w", k, err)
		}
		exported = append(exported, k)
	}
	sort.Strings(exported)
	return exported, nil
}
