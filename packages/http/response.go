package http

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultReadTimeout bounds every single read of a response.
	DefaultReadTimeout = 10 * time.Second
	// DefaultMaxLineBytes caps the status line and each header line.
	DefaultMaxLineBytes = 64 << 10
	// DefaultMaxBodyBytes caps the accepted Content-Length.
	DefaultMaxBodyBytes = 64 << 20
	// DefaultChunkSize is the largest body read issued under one deadline.
	DefaultChunkSize = 4 << 10
)

// State is a step of the response reader.
type State int

const (
	StatusState State = iota
	HeadersState
	BodyState
	DoneState
	AbandonedState
)

func (s State) String() string {
	switch s {
	case StatusState:
		return "status"
	case HeadersState:
		return "headers"
	case BodyState:
		return "body"
	case DoneState:
		return "done"
	case AbandonedState:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Response is a fully read response.
type Response struct {
	StatusLine    string
	StatusCode    int // 0 when the status line has no numeric code
	Header        *HeaderMap
	Skipped       []LineResult
	Body          []byte
	ContentLength int64
	ContentType   string
	Duration      time.Duration
}

// IsSuccess reports a 2xx status code.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Outcome is the result of reading a response that did not fail. Either
// Response is set, or the fetch was abandoned and Reason says why.
type Outcome struct {
	Response *Response
	Reason   string
}

// Abandoned reports whether the response was dropped for lacking the headers
// needed to read its body.
func (o Outcome) Abandoned() bool {
	return o.Response == nil
}

// Conn is the part of a connection the Reader needs.
type Conn interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// Reader parses one response off a connection:
//
//	status -> headers -> body -> done
//	                  \-> abandoned
//
// Every line read and every body chunk read gets a fresh deadline of Timeout.
type Reader struct {
	Conn         Conn
	Timeout      time.Duration
	MaxLineBytes int
	MaxBodyBytes int64
	ChunkSize    int
	Logger       *zerolog.Logger

	// Done aborts the read at the next line or chunk once closed.
	Done <-chan struct{}

	br    *bufio.Reader
	state State
}

// NewReader returns a Reader for conn with default limits.
func NewReader(conn Conn) *Reader {
	return &Reader{
		Conn:         conn,
		Timeout:      DefaultReadTimeout,
		MaxLineBytes: DefaultMaxLineBytes,
		MaxBodyBytes: DefaultMaxBodyBytes,
		ChunkSize:    DefaultChunkSize,
	}
}

// State returns the step the reader stopped in.
func (r *Reader) State() State {
	return r.state
}

// Read reads a whole response. A response without Content-Length or
// Content-Type, or with an unusable Content-Length, yields an abandoned
// Outcome and a nil error. Timeouts, EOF and other I/O failures are returned
// as *ReadError.
func (r *Reader) Read() (Outcome, error) {
	if r.br == nil {
		r.br = bufio.NewReader(r.Conn)
	}
	log := r.logger()
	resp := &Response{Header: NewHeaderMap()}

	r.state = StatusState
	line, err := r.readLine()
	if err != nil {
		return Outcome{}, r.fail(err)
	}
	resp.StatusLine = line
	resp.StatusCode = parseStatusCode(line)
	log.Debug().Str("status", line).Msg("status line")

	r.state = HeadersState
	for {
		line, err := r.readLine()
		if err != nil {
			return Outcome{}, r.fail(err)
		}
		if line == "" {
			break
		}
		log.Debug().Str("line", line).Msg("got")
		for _, res := range resp.Header.ParseBlock(line) {
			if res.Kind == LineSkip {
				log.Debug().Str("line", res.Line).Str("reason", res.Reason).Msg("skipping header line")
				resp.Skipped = append(resp.Skipped, res)
			}
		}
	}

	r.state = BodyState
	length, contentType, reason := bodyFraming(resp.Header)
	if reason != "" {
		r.state = AbandonedState
		log.Debug().Str("reason", reason).Msg("response abandoned")
		return Outcome{Reason: reason}, nil
	}
	if limit := r.maxBodyBytes(); length > limit {
		return Outcome{}, r.fail(fmt.Errorf("%w: %d > %d", ErrBodyTooLarge, length, limit))
	}
	resp.ContentLength = length
	resp.ContentType = contentType

	body, err := r.readBody(length)
	if err != nil {
		return Outcome{}, r.fail(err)
	}
	resp.Body = body
	log.Debug().Int("bytes", len(body)).Msg("body read")

	r.state = DoneState
	return Outcome{Response: resp}, nil
}

// bodyFraming extracts Content-Length and Content-Type. A non-empty reason
// means the body cannot be read.
func bodyFraming(h *HeaderMap) (length int64, contentType, reason string) {
	raw, err := h.Get("Content-Length")
	if err != nil {
		return 0, "", "missing Content-Length"
	}
	contentType, err = h.Get("Content-Type")
	if err != nil {
		return 0, "", "missing Content-Type"
	}
	length, err = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || length < 0 {
		return 0, "", fmt.Sprintf("invalid Content-Length %q", raw)
	}
	return length, contentType, ""
}

// readLine reads up to and including '\n' under one deadline and returns the
// line without its terminator.
func (r *Reader) readLine() (string, error) {
	if err := r.arm(); err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		b, err := r.br.ReadByte()
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == '\n' {
			break
		}
		sb.WriteByte(b)
		if limit := r.maxLineBytes(); sb.Len() > limit {
			return "", fmt.Errorf("%w: more than %d bytes", ErrHeaderTooLarge, limit)
		}
	}
	return strings.TrimSuffix(sb.String(), "\r"), nil
}

// readBody reads exactly n bytes in chunks, each under its own deadline.
func (r *Reader) readBody(n int64) ([]byte, error) {
	body := make([]byte, 0, n)
	buf := make([]byte, r.chunkSize())
	for int64(len(body)) < n {
		want := int64(len(buf))
		if left := n - int64(len(body)); left < want {
			want = left
		}
		if err := r.arm(); err != nil {
			return nil, err
		}
		k, err := io.ReadFull(r.br, buf[:want])
		body = append(body, buf[:k]...)
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
	return body, nil
}

// arm sets a fresh read deadline. Done is checked after the deadline is set
// so a cancellation that already forced the deadline is never overwritten.
func (r *Reader) arm() error {
	if err := r.Conn.SetReadDeadline(time.Now().Add(r.timeout())); err != nil {
		return err
	}
	select {
	case <-r.Done:
		return errReadCanceled
	default:
		return nil
	}
}

func (r *Reader) fail(err error) error {
	switch {
	case isTimeout(err):
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, ErrHeaderTooLarge), errors.Is(err, ErrBodyTooLarge):
	default:
		err = fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return &ReadError{State: r.state, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func parseStatusCode(line string) int {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	return code
}

func (r *Reader) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultReadTimeout
	}
	return r.Timeout
}

func (r *Reader) maxLineBytes() int {
	if r.MaxLineBytes <= 0 {
		return DefaultMaxLineBytes
	}
	return r.MaxLineBytes
}

func (r *Reader) maxBodyBytes() int64 {
	if r.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return r.MaxBodyBytes
}

func (r *Reader) chunkSize() int {
	if r.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return r.ChunkSize
}

func (r *Reader) logger() *zerolog.Logger {
	if r.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return r.Logger
}
