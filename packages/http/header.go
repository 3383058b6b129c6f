package http

import (
	"fmt"
	"strings"
)

// RequiredHeaders are dumped before every other header, in this order.
var RequiredHeaders = []string{"Host"}

const (
	lineTerminator  = "\r\n"
	headerSeparator = ": "
)

// HeaderMap stores header values under canonical names. Names are
// case-insensitive: every insert and lookup goes through Canonicalize.
// Insertion order is kept for Dump. The zero value is an empty map ready
// to use.
type HeaderMap struct {
	values map[string]string
	order  []string
}

// NewHeaderMap returns an empty HeaderMap.
func NewHeaderMap() *HeaderMap {
	return &HeaderMap{
		values: make(map[string]string),
	}
}

// Canonicalize rewrites a header name so every hyphen-separated segment starts
// with an uppercase letter followed by lowercase characters, e.g.
// "content-TYPE" becomes "Content-Type". Surrounding whitespace is ignored.
//
// A segment that is empty, does not start with a letter or contains anything
// but letters and digits makes the name invalid.
func Canonicalize(name string) (string, error) {
	segments := strings.Split(strings.TrimSpace(name), "-")
	for i, seg := range segments {
		if !validSegment(seg) {
			return "", fmt.Errorf("%w: %q", ErrInvalidHeaderName, name)
		}
		segments[i] = strings.ToUpper(seg[:1]) + strings.ToLower(seg[1:])
	}
	return strings.Join(segments, "-"), nil
}

func validSegment(seg string) bool {
	if seg == "" || !isLetter(seg[0]) {
		return false
	}
	for i := 1; i < len(seg); i++ {
		if !isLetter(seg[i]) && !isDigit(seg[i]) {
			return false
		}
	}
	return true
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Set stores value under the canonical form of name. Replacing an existing
// header keeps its original position.
func (h *HeaderMap) Set(name, value string) error {
	key, err := Canonicalize(name)
	if err != nil {
		return err
	}
	h.set(key, value)
	return nil
}

func (h *HeaderMap) set(key, value string) {
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, ok := h.values[key]; !ok {
		h.order = append(h.order, key)
	}
	h.values[key] = value
}

// Get returns the value stored under name. It fails with ErrMissingHeader
// when the header is absent and ErrInvalidHeaderName when name cannot be
// canonicalized.
func (h *HeaderMap) Get(name string) (string, error) {
	key, err := Canonicalize(name)
	if err != nil {
		return "", err
	}
	v, ok := h.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingHeader, key)
	}
	return v, nil
}

// Lookup is Get without the error detail.
func (h *HeaderMap) Lookup(name string) (string, bool) {
	v, err := h.Get(name)
	return v, err == nil
}

// Len returns the number of stored headers.
func (h *HeaderMap) Len() int {
	return len(h.order)
}

// Keys returns the canonical names in insertion order.
func (h *HeaderMap) Keys() []string {
	keys := make([]string, len(h.order))
	copy(keys, h.order)
	return keys
}

// Dump renders the headers as "Name: value" lines joined by CRLF, without a
// trailing terminator. Required headers come first; absent ones are skipped.
func (h *HeaderMap) Dump() string {
	lines := make([]string, 0, len(h.order))
	for _, name := range RequiredHeaders {
		if v, ok := h.values[name]; ok {
			lines = append(lines, name+headerSeparator+v)
		}
	}
	for _, name := range h.order {
		if isRequired(name) {
			continue
		}
		lines = append(lines, name+headerSeparator+h.values[name])
	}
	return strings.Join(lines, lineTerminator)
}

func isRequired(name string) bool {
	for _, r := range RequiredHeaders {
		if r == name {
			return true
		}
	}
	return false
}

// LineKind classifies one parsed header line.
type LineKind int

const (
	// LineHeader is a well-formed "Name: value" line.
	LineHeader LineKind = iota
	// LineSkip is a malformed line that lenient parsing ignores.
	LineSkip
	// LineEnd is the blank line closing a header block.
	LineEnd
)

func (k LineKind) String() string {
	switch k {
	case LineHeader:
		return "header"
	case LineSkip:
		return "skip"
	case LineEnd:
		return "end"
	default:
		return "unknown"
	}
}

// LineResult is the outcome of parsing a single header line.
type LineResult struct {
	Kind   LineKind
	Name   string // canonical name, LineHeader only
	Value  string
	Line   string // the raw line, without terminator
	Reason string // why the line was skipped
}

// ParseLine parses one header line. A trailing CRLF is ignored. Lines without
// the ": " separator or with an invalid name come back as LineSkip rather than
// an error.
func ParseLine(line string) LineResult {
	line = strings.TrimSuffix(line, lineTerminator)
	if line == "" {
		return LineResult{Kind: LineEnd}
	}
	name, value, found := strings.Cut(line, headerSeparator)
	if !found {
		return LineResult{Kind: LineSkip, Line: line, Reason: "missing separator"}
	}
	key, err := Canonicalize(name)
	if err != nil {
		return LineResult{Kind: LineSkip, Line: line, Reason: "invalid name"}
	}
	return LineResult{
		Kind:  LineHeader,
		Name:  key,
		Value: strings.TrimPrefix(value, " "),
		Line:  line,
	}
}

// ParseBlock splits text on CRLF and stores every well-formed line. Empty
// lines are ignored. The result lists what happened to each non-empty line so
// callers can report skipped input.
func (h *HeaderMap) ParseBlock(text string) []LineResult {
	var results []LineResult
	for _, line := range strings.Split(text, lineTerminator) {
		if line == "" {
			continue
		}
		r := ParseLine(line)
		if r.Kind == LineHeader {
			h.set(r.Name, r.Value)
		}
		results = append(results, r)
	}
	return results
}

// ParseHeaderBlock builds a new HeaderMap from text.
func ParseHeaderBlock(text string) *HeaderMap {
	h := NewHeaderMap()
	h.ParseBlock(text)
	return h
}
