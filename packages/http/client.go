package http

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/capfetch/packages/identity"
	"github.com/rs/zerolog"
)

// IdentitySource hands out the User-Agent for each request.
type IdentitySource interface {
	Pick() string
}

type Client struct {
	dialer       Dialer
	netDialer    *NetDialer
	identities   IdentitySource
	forwardedFor string
	headers      map[string]string
	readTimeout  time.Duration
	maxLineBytes int
	maxBodyBytes int64
	chunkSize    int
	logger       zerolog.Logger
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		netDialer:    newNetDialer(),
		identities:   identity.NewPool(nil),
		forwardedFor: DefaultForwardedFor,
		headers:      make(map[string]string),
		readTimeout:  DefaultReadTimeout,
		maxLineBytes: DefaultMaxLineBytes,
		maxBodyBytes: DefaultMaxBodyBytes,
		chunkSize:    DefaultChunkSize,
		logger:       zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.dialer == nil {
		c.dialer = c.netDialer
	}

	return c
}

// WithDialer replaces the network dialer. Dialer related options are ignored
// afterwards.
func WithDialer(d Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = d
	}
}

func WithReadTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.readTimeout = d
	}
}

func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.netDialer.ConnectTimeout = d
		c.netDialer.TLSHandshakeTimeout = d
	}
}

// WithForwardedFor sets the X-Forwarded-For value. An empty value drops the
// header.
func WithForwardedFor(addr string) ClientOption {
	return func(c *Client) {
		c.forwardedFor = addr
	}
}

func WithDefaultHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithDefaultHeaders adds headers sent after the built-in ones
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *Client) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

func WithIdentities(src IdentitySource) ClientOption {
	return func(c *Client) {
		c.identities = src
	}
}

// WithValidateSSL enables or disables certificate verification
func WithValidateSSL(validate bool) ClientOption {
	return func(c *Client) {
		c.netDialer.Insecure = !validate
	}
}

// WithProxy routes connections through a socks5:// proxy
func WithProxy(proxyURL string) ClientOption {
	return func(c *Client) {
		c.netDialer.Proxy = proxyURL
	}
}

// WithResolver resolves hosts with the given DNS servers
func WithResolver(r *Resolver) ClientOption {
	return func(c *Client) {
		c.netDialer.Resolver = r
	}
}

// WithTLSFingerprint selects the TLS ClientHello, see the Fingerprint constants
func WithTLSFingerprint(name string) ClientOption {
	return func(c *Client) {
		c.netDialer.Fingerprint = name
	}
}

func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) {
		c.maxBodyBytes = n
	}
}

func WithChunkSize(n int) ClientOption {
	return func(c *Client) {
		c.chunkSize = n
	}
}

func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// Get performs one request/response cycle against rawURL on a fresh
// connection. An abandoned response is not an error; check
// Outcome.Abandoned.
func (c *Client) Get(ctx context.Context, rawURL string) (Outcome, error) {
	target, err := ParseTarget(rawURL)
	if err != nil {
		return Outcome{}, err
	}

	req, err := BuildRequest(target, c.identities.Pick(), c.forwardedFor, c.headers)
	if err != nil {
		return Outcome{}, err
	}
	raw := req.Bytes()

	log := c.logger.With().Str("target", target.String()).Logger()
	log.Debug().Str("request", string(raw)).Msg("sending request")

	start := time.Now()
	conn, err := c.dialer.Dial(ctx, target)
	if err != nil {
		return Outcome{}, err
	}
	defer conn.Close()

	// Unblock pending reads and writes once ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	timeout := c.readTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if _, err := conn.Write(raw); err != nil {
		return Outcome{}, fmt.Errorf("%w: write request: %w", ErrTransport, err)
	}

	reader := &Reader{
		Conn:         conn,
		Timeout:      timeout,
		MaxLineBytes: c.maxLineBytes,
		MaxBodyBytes: c.maxBodyBytes,
		ChunkSize:    c.chunkSize,
		Logger:       &log,
		Done:         ctx.Done(),
	}
	outcome, err := reader.Read()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}
		return Outcome{}, err
	}
	if outcome.Response != nil {
		outcome.Response.Duration = time.Since(start)
	}
	return outcome, nil
}
