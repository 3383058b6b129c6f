package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/capfetch/packages/identity"
	"github.com/armon/go-socks5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawServer accepts connections on 127.0.0.1 and runs handle on each one.
type rawServer struct {
	ln   net.Listener
	wg   sync.WaitGroup
	mu   sync.Mutex
	reqs []string
}

func newRawServer(t *testing.T, handle func(conn net.Conn, request string)) *rawServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &rawServer{ln: ln}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer conn.Close()
				req := readRequest(conn)
				s.mu.Lock()
				s.reqs = append(s.reqs, req)
				s.mu.Unlock()
				handle(conn, req)
			}()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *rawServer) URL(path string) string {
	return "http://" + s.ln.Addr().String() + path
}

func (s *rawServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reqs...)
}

// readRequest reads a request head up to and including the blank line.
func readRequest(conn net.Conn) string {
	br := bufio.NewReader(conn)
	var sb strings.Builder
	for {
		line, err := br.ReadString('\n')
		sb.WriteString(line)
		if err != nil || line == "\r\n" {
			return sb.String()
		}
	}
}

func reply(raw string) func(net.Conn, string) {
	return func(conn net.Conn, _ string) {
		_, _ = conn.Write([]byte(raw))
	}
}

func fixedAgent() ClientOption {
	return WithIdentities(identity.NewPool([]string{"test-agent/1.0"}))
}

func TestClient_Get(t *testing.T) {
	srv := newRawServer(t, reply("HTTP/1.1 200 OK\r\nContent-Type: image/png\r\nContent-Length: 3\r\n\r\nabc"))

	client := NewClient(fixedAgent())
	outcome, err := client.Get(context.Background(), srv.URL("/x"))
	require.NoError(t, err)
	require.False(t, outcome.Abandoned())

	resp := outcome.Response
	assert.Equal(t, "HTTP/1.1 200 OK", resp.StatusLine)
	assert.Equal(t, "image/png", resp.ContentType)
	assert.Equal(t, []byte("abc"), resp.Body)
	assert.Greater(t, resp.Duration, time.Duration(0))

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t,
		"GET /x HTTP/1.1\r\n"+
			"Host: 127.0.0.1\r\n"+
			"User-Agent: test-agent/1.0\r\n"+
			"Accept: */*\r\n"+
			"X-Forwarded-For: 1.2.3.4\r\n"+
			"\r\n",
		reqs[0])
}

func TestClient_GetOptions(t *testing.T) {
	srv := newRawServer(t, reply("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 2\r\n\r\nok"))

	client := NewClient(
		fixedAgent(),
		WithForwardedFor(""),
		WithDefaultHeader("referer", "http://example.com/"),
		WithDefaultHeaders(map[string]string{"Cookie": "sid=1"}),
	)
	_, err := client.Get(context.Background(), srv.URL("/"))
	require.NoError(t, err)

	req := srv.Requests()[0]
	assert.NotContains(t, req, "X-Forwarded-For")
	assert.Contains(t, req, "Referer: http://example.com/\r\n")
	assert.Contains(t, req, "Cookie: sid=1\r\n")
}

func TestClient_Abandoned(t *testing.T) {
	srv := newRawServer(t, reply("HTTP/1.1 200 OK\r\nContent-Type: image/png\r\n\r\nabc"))

	outcome, err := NewClient().Get(context.Background(), srv.URL("/x"))
	require.NoError(t, err)
	assert.True(t, outcome.Abandoned())
	assert.Equal(t, "missing Content-Length", outcome.Reason)
}

func TestClient_ReadTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newRawServer(t, func(conn net.Conn, _ string) {
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\n"))
		<-release
	})
	defer close(release)

	client := NewClient(WithReadTimeout(50 * time.Millisecond))
	_, err := client.Get(context.Background(), srv.URL("/slow"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, HeadersState, readErr.State)
}

func TestClient_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := newRawServer(t, func(conn net.Conn, _ string) {
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(WithReadTimeout(5 * time.Second))
	start := time.Now()
	_, err := client.Get(ctx, srv.URL("/"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = NewClient(WithConnectTimeout(time.Second)).Get(context.Background(), "http://"+addr+"/")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_InvalidURL(t *testing.T) {
	_, err := NewClient().Get(context.Background(), "http://example.com:99999/")
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestClient_InvalidDefaultHeader(t *testing.T) {
	_, err := NewClient(WithDefaultHeader("bad header", "x")).Get(context.Background(), "http://127.0.0.1:1/")
	assert.ErrorIs(t, err, ErrInvalidHeaderName)
}

func TestClient_BodyLimit(t *testing.T) {
	srv := newRawServer(t, reply("HTTP/1.1 200 OK\r\nContent-Type: a/b\r\nContent-Length: 100\r\n\r\n"))

	_, err := NewClient(WithMaxBodyBytes(10)).Get(context.Background(), srv.URL("/"))
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestClient_SOCKS5Proxy(t *testing.T) {
	srv := newRawServer(t, reply("HTTP/1.1 200 OK\r\nContent-Type: image/png\r\nContent-Length: 3\r\n\r\nabc"))

	proxyServer, err := socks5.New(&socks5.Config{})
	require.NoError(t, err)
	proxyLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = proxyServer.Serve(proxyLn)
	}()
	t.Cleanup(func() {
		_ = proxyLn.Close()
		<-served
	})

	client := NewClient(WithProxy("socks5://"+proxyLn.Addr().String()), WithChunkSize(1))
	outcome, err := client.Get(context.Background(), srv.URL("/x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), outcome.Response.Body)
	require.Len(t, srv.Requests(), 1)
	assert.True(t, strings.HasPrefix(srv.Requests()[0], "GET /x HTTP/1.1\r\n"))
}

func TestClient_BadProxy(t *testing.T) {
	_, err := NewClient(WithProxy("gopher://127.0.0.1:1")).Get(context.Background(), "http://127.0.0.1:1/")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestClient_TLS(t *testing.T) {
	server := httptest.NewTLSServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "/cap", r.URL.Path)
		assert.Equal(t, "1.2.3.4", r.Header.Get("X-Forwarded-For"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png!"))
	}))
	defer server.Close()

	t.Run("insecure", func(t *testing.T) {
		client := NewClient(WithValidateSSL(false), WithTLSFingerprint(FingerprintGo))
		outcome, err := client.Get(context.Background(), server.URL+"/cap")
		require.NoError(t, err)
		require.False(t, outcome.Abandoned())
		assert.Equal(t, 200, outcome.Response.StatusCode)
		assert.Equal(t, "png!", string(outcome.Response.Body))
	})

	t.Run("unknown certificate", func(t *testing.T) {
		_, err := NewClient().Get(context.Background(), server.URL+"/cap")
		assert.ErrorIs(t, err, ErrTransport)
	})
}

func TestClient_CustomDialer(t *testing.T) {
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		_ = readRequest(server)
		_, _ = server.Write([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 4\r\n\r\npipe"))
	}()

	var dialed Target
	c := NewClient(WithDialer(dialerFunc(func(ctx context.Context, target Target) (net.Conn, error) {
		dialed = target
		return client, nil
	})))

	outcome, err := c.Get(context.Background(), "https://captcha.invalid:8443/img")
	require.NoError(t, err)
	assert.Equal(t, "pipe", string(outcome.Response.Body))
	assert.Equal(t, Target{Scheme: "https", Host: "captcha.invalid", Port: 8443, Path: "/img"}, dialed)
}

func TestClient_DialError(t *testing.T) {
	boom := errors.New("boom")
	c := NewClient(WithDialer(dialerFunc(func(ctx context.Context, target Target) (net.Conn, error) {
		return nil, boom
	})))

	_, err := c.Get(context.Background(), "http://example.com/")
	assert.ErrorIs(t, err, boom)
}

type dialerFunc func(ctx context.Context, target Target) (net.Conn, error)

func (f dialerFunc) Dial(ctx context.Context, target Target) (net.Conn, error) {
	return f(ctx, target)
}

func TestValidFingerprint(t *testing.T) {
	for _, name := range []string{"", "go", "chrome", "firefox", "safari", "ios", "edge", "randomized"} {
		assert.True(t, ValidFingerprint(name), name)
	}
	assert.False(t, ValidFingerprint("netscape"))
}
