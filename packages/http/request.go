package http

import (
	"sort"
	"strings"
)

// DefaultForwardedFor is the X-Forwarded-For value sent unless configured
// otherwise.
const DefaultForwardedFor = "1.2.3.4"

// Request is a GET request ready to be written to a connection.
type Request struct {
	Target Target
	Header *HeaderMap
}

// NewRequest returns a GET request for target with an empty header block.
func NewRequest(target Target) *Request {
	return &Request{
		Target: target,
		Header: NewHeaderMap(),
	}
}

// SetHeader sets a header on the request, see HeaderMap.Set.
func (r *Request) SetHeader(name, value string) error {
	return r.Header.Set(name, value)
}

// Line returns the request line without terminator.
func (r *Request) Line() string {
	return "GET " + r.Target.Path + " HTTP/1.1"
}

// Bytes serializes the request: request line, header block and the blank
// line closing it.
func (r *Request) Bytes() []byte {
	var b strings.Builder
	b.WriteString(r.Line())
	b.WriteString(lineTerminator)
	b.WriteString(r.Header.Dump())
	b.WriteString(lineTerminator)
	b.WriteString(lineTerminator)
	return []byte(b.String())
}

// BuildRequest assembles the GET request capfetch sends: Host, User-Agent,
// Accept and, when forwardedFor is not empty, X-Forwarded-For. Extra headers
// are applied afterwards in name order; they may replace the defaults.
func BuildRequest(target Target, userAgent, forwardedFor string, extra map[string]string) (*Request, error) {
	r := NewRequest(target)
	if err := r.SetHeader("host", target.Host); err != nil {
		return nil, err
	}
	if err := r.SetHeader("user-agent", userAgent); err != nil {
		return nil, err
	}
	if err := r.SetHeader("Accept", "*/*"); err != nil {
		return nil, err
	}
	if forwardedFor != "" {
		if err := r.SetHeader("x-forwarded-for", forwardedFor); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.SetHeader(name, extra[name]); err != nil {
			return nil, err
		}
	}
	return r, nil
}
