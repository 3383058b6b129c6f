package http

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Schemes lists the supported schemes in the order ExtractScheme tries them.
var Schemes = []string{"http", "https"}

var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
}

// DefaultPort returns the well-known port for scheme, or 0 if unknown.
func DefaultPort(scheme string) int {
	return defaultPorts[scheme]
}

// Target is a URL decomposed into the pieces needed to open a connection and
// write a request line.
type Target struct {
	Scheme string
	Host   string
	Port   int
	Path   string
}

// Address returns host:port suitable for net.Dial.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Encrypted reports whether the connection must use TLS.
func (t Target) Encrypted() bool {
	return t.Scheme == "https"
}

func (t Target) String() string {
	return t.Scheme + "://" + t.Address() + t.Path
}

// ExtractScheme looks for the first "http://" or "https://" in rawURL. If one
// is found it returns what follows it and the scheme, otherwise rawURL is
// returned unchanged with scheme "http".
func ExtractScheme(rawURL string) (rest, scheme string) {
	for _, s := range Schemes {
		prefix := s + "://"
		if i := strings.Index(rawURL, prefix); i >= 0 {
			return rawURL[i+len(prefix):], s
		}
	}
	return rawURL, "http"
}

// SplitHost splits the scheme-less remainder of a URL into host, port and
// path. The host is everything before the first "/"; a ":port" suffix
// overrides the scheme's default port. The path is "/" when rest holds only
// the host.
func SplitHost(rest, scheme string) (Target, error) {
	hostPart, path := rest, "/"
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		hostPart, path = rest[:i], rest[i:]
	}

	t := Target{
		Scheme: scheme,
		Host:   hostPart,
		Port:   DefaultPort(scheme),
		Path:   path,
	}

	if i := strings.LastIndexByte(hostPart, ':'); i >= 0 && !strings.HasSuffix(hostPart, "]") {
		port, err := strconv.Atoi(hostPart[i+1:])
		if err != nil || port < 1 || port > 65535 {
			return Target{}, fmt.Errorf("%w: %q", ErrInvalidPort, hostPart[i+1:])
		}
		t.Host, t.Port = hostPart[:i], port
	}
	t.Host = strings.TrimSuffix(strings.TrimPrefix(t.Host, "["), "]")

	if t.Host == "" {
		return Target{}, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rest)
	}
	return t, nil
}

// ParseTarget runs ExtractScheme followed by SplitHost.
func ParseTarget(rawURL string) (Target, error) {
	rest, scheme := ExtractScheme(strings.TrimSpace(rawURL))
	return SplitHost(rest, scheme)
}
