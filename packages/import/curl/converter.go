// Package curl turns a curl command line into capfetch configuration.
//
// Browsers offer "copy as cURL" for any request; feeding that text here keeps
// the cookies, referer and user agent the camera or server expects.
package curl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/abdul-hamid-achik/capfetch/packages/core/config"
	"github.com/abdul-hamid-achik/capfetch/packages/http"
)

// droppedHeaders are set by the client itself or ask for features it does not
// implement.
var droppedHeaders = map[string]bool{
	"Host":              true,
	"Connection":        true,
	"Content-Length":    true,
	"Accept-Encoding":   true,
	"Transfer-Encoding": true,
}

// Command represents a parsed curl command.
type Command struct {
	URL       string
	Headers   map[string]string
	UserAgent string
	Insecure  bool
	Proxy     string
	Skipped   []string
}

// Parse parses a curl command string. Only GET requests without a body are
// accepted.
func Parse(curlCmd string) (*Command, error) {
	parsed := &Command{Headers: make(map[string]string)}

	curlCmd = strings.TrimSpace(curlCmd)
	if curlCmd == "curl" {
		return nil, fmt.Errorf("no URL specified")
	}
	curlCmd = strings.TrimPrefix(curlCmd, "curl ")

	tokens := tokenize(curlCmd)

	value := func(i int) (string, error) {
		if i+1 >= len(tokens) {
			return "", fmt.Errorf("missing value for %s", tokens[i])
		}
		return tokens[i+1], nil
	}

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		switch token {
		case "-X", "--request":
			method, err := value(i)
			if err != nil {
				return nil, err
			}
			if !strings.EqualFold(method, "GET") {
				return nil, fmt.Errorf("unsupported method %s: only GET requests can be fetched", method)
			}
			i++

		case "-H", "--header":
			header, err := value(i)
			if err != nil {
				return nil, err
			}
			if name, val, ok := strings.Cut(header, ":"); ok {
				parsed.setHeader(strings.TrimSpace(name), strings.TrimSpace(val))
			}
			i++

		case "-d", "--data", "--data-raw", "--data-binary", "--data-urlencode", "-F", "--form":
			return nil, fmt.Errorf("%s sends a request body: only GET requests can be fetched", token)

		case "-A", "--user-agent":
			ua, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.UserAgent = ua
			i++

		case "-e", "--referer":
			ref, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.Headers["Referer"] = ref
			i++

		case "-b", "--cookie":
			cookie, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.Headers["Cookie"] = cookie
			i++

		case "-x", "--proxy", "--socks5", "--socks5-hostname":
			p, err := value(i)
			if err != nil {
				return nil, err
			}
			if !strings.Contains(p, "://") {
				p = "socks5://" + p
			}
			parsed.Proxy = p
			i++

		case "-k", "--insecure":
			parsed.Insecure = true

		case "--url":
			u, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.URL = u
			i++

		default:
			switch {
			case strings.HasPrefix(token, "-"):
				// Skip unknown flags with potential values
				if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") && !isURL(tokens[i+1]) {
					i++
				}
			case parsed.URL == "" && isURL(token):
				parsed.URL = token
			}
		}
	}

	if parsed.URL == "" {
		return nil, fmt.Errorf("no URL found in curl command")
	}

	return parsed, nil
}

// setHeader records a header. Names the request builder would reject are
// kept in Skipped instead.
func (c *Command) setHeader(name, value string) {
	canonical, err := http.Canonicalize(name)
	if err != nil {
		c.Skipped = append(c.Skipped, name)
		return
	}
	if canonical == "User-Agent" {
		c.UserAgent = value
		return
	}
	if !droppedHeaders[canonical] {
		c.Headers[canonical] = value
	}
}

// Config returns the configuration reproducing the command's request.
func (c *Command) Config() *config.Config {
	cfg := config.DefaultConfig()
	if len(c.Headers) > 0 {
		cfg.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			cfg.Headers[k] = v
		}
	}
	if c.UserAgent != "" {
		cfg.UserAgents = []string{c.UserAgent}
	}
	if c.Insecure {
		cfg.ValidateSSL = config.BoolPtr(false)
	}
	cfg.Proxy = c.Proxy
	return cfg
}

// ReadCommand reads the first curl command from r, joining lines ending in a
// backslash. Blank lines and # comments are skipped.
func ReadCommand(r io.Reader) (string, error) {
	var current strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if current.Len() == 0 && (line == "" || strings.HasPrefix(line, "#")) {
			continue
		}

		if strings.HasSuffix(line, "\\") {
			current.WriteString(strings.TrimSuffix(line, "\\"))
			current.WriteString(" ")
			continue
		}

		current.WriteString(line)
		return current.String(), nil
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read command: %w", err)
	}
	if current.Len() > 0 {
		return current.String(), nil
	}
	return "", fmt.Errorf("no curl command found")
}

// tokenize splits a curl command into tokens, respecting quotes.
func tokenize(cmd string) []string {
	var tokens []string
	var current strings.Builder
	inSingleQuote := false
	inDoubleQuote := false
	escaped := false

	for _, r := range cmd {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}

		switch r {
		case '\\':
			if inSingleQuote {
				current.WriteRune(r)
			} else {
				escaped = true
			}
		case '\'':
			if !inDoubleQuote {
				inSingleQuote = !inSingleQuote
			} else {
				current.WriteRune(r)
			}
		case '"':
			if !inSingleQuote {
				inDoubleQuote = !inDoubleQuote
			} else {
				current.WriteRune(r)
			}
		case ' ', '\t', '\n':
			if inSingleQuote || inDoubleQuote {
				current.WriteRune(r)
			} else if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
