package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

const (
	// DefaultConnectTimeout bounds the TCP connect.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultTLSHandshakeTimeout bounds the TLS handshake.
	DefaultTLSHandshakeTimeout = 10 * time.Second
)

// TLS fingerprints accepted by NetDialer.Fingerprint.
const (
	FingerprintGo         = "go"
	FingerprintChrome     = "chrome"
	FingerprintFirefox    = "firefox"
	FingerprintSafari     = "safari"
	FingerprintIOS        = "ios"
	FingerprintEdge       = "edge"
	FingerprintRandomized = "randomized"
)

var clientHellos = map[string]utls.ClientHelloID{
	FingerprintChrome:  utls.HelloChrome_Auto,
	FingerprintFirefox: utls.HelloFirefox_Auto,
	FingerprintSafari:  utls.HelloSafari_Auto,
	FingerprintIOS:     utls.HelloIOS_Auto,
	FingerprintEdge:    utls.HelloEdge_Auto,
}

// ValidFingerprint reports whether name is a known TLS fingerprint.
func ValidFingerprint(name string) bool {
	if name == "" || name == FingerprintGo || name == FingerprintRandomized {
		return true
	}
	_, ok := clientHellos[name]
	return ok
}

// Dialer opens the single connection a fetch uses.
type Dialer interface {
	Dial(ctx context.Context, target Target) (net.Conn, error)
}

// NetDialer dials TCP, optionally through a SOCKS5 proxy or with a custom DNS
// resolver, and wraps the connection in TLS when the target is https.
type NetDialer struct {
	ConnectTimeout      time.Duration
	TLSHandshakeTimeout time.Duration
	Insecure            bool
	Fingerprint         string
	Resolver            *Resolver
	Proxy               string
}

func newNetDialer() *NetDialer {
	return &NetDialer{
		ConnectTimeout:      DefaultConnectTimeout,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		Fingerprint:         FingerprintGo,
	}
}

// Dial connects to target. All failures wrap ErrTransport.
func (d *NetDialer) Dial(ctx context.Context, target Target) (net.Conn, error) {
	addr, err := d.address(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	conn, err := d.dialTCP(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, addr, err)
	}
	if !target.Encrypted() {
		return conn, nil
	}

	tlsConn, err := d.handshake(ctx, conn, target.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: tls handshake with %s: %w", ErrTransport, target.Host, err)
	}
	return tlsConn, nil
}

// address resolves the host itself when a custom resolver is configured. With
// a proxy the hostname is handed to the proxy unresolved.
func (d *NetDialer) address(ctx context.Context, target Target) (string, error) {
	if d.Resolver == nil || d.Proxy != "" {
		return target.Address(), nil
	}
	ip, err := d.Resolver.Resolve(ctx, target.Host)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(target.Port)), nil
}

func (d *NetDialer) dialTCP(ctx context.Context, addr string) (net.Conn, error) {
	base := &net.Dialer{Timeout: d.connectTimeout()}
	if d.Proxy == "" {
		return base.DialContext(ctx, "tcp", addr)
	}

	proxyURL, err := url.Parse(d.Proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	pd, err := proxy.FromURL(proxyURL, base)
	if err != nil {
		return nil, err
	}
	if cd, ok := pd.(proxy.ContextDialer); ok {
		ctx, cancel := context.WithTimeout(ctx, d.connectTimeout())
		defer cancel()
		return cd.DialContext(ctx, "tcp", addr)
	}
	return pd.Dial("tcp", addr)
}

func (d *NetDialer) handshake(ctx context.Context, conn net.Conn, host string) (net.Conn, error) {
	timeout := d.TLSHandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultTLSHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch fp := strings.ToLower(d.Fingerprint); fp {
	case "", FingerprintGo:
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: d.Insecure,
			NextProtos:         []string{"http/1.1"},
		})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, err
		}
		return tlsConn, nil
	case FingerprintRandomized:
		uconn := utls.UClient(conn, d.utlsConfig(host), utls.HelloRandomizedNoALPN)
		if err := uconn.HandshakeContext(ctx); err != nil {
			return nil, err
		}
		return uconn, nil
	default:
		id, ok := clientHellos[fp]
		if !ok {
			return nil, fmt.Errorf("unknown tls fingerprint %q", d.Fingerprint)
		}
		spec, err := utls.UTLSIdToSpec(id)
		if err != nil {
			return nil, err
		}
		pinHTTP11(&spec)
		uconn := utls.UClient(conn, d.utlsConfig(host), utls.HelloCustom)
		if err := uconn.ApplyPreset(&spec); err != nil {
			return nil, err
		}
		if err := uconn.HandshakeContext(ctx); err != nil {
			return nil, err
		}
		return uconn, nil
	}
}

func (d *NetDialer) utlsConfig(host string) *utls.Config {
	return &utls.Config{
		ServerName:         host,
		InsecureSkipVerify: d.Insecure,
	}
}

// pinHTTP11 restricts ALPN to http/1.1 so servers never pick h2 for a
// connection that will only ever speak HTTP/1.1.
func pinHTTP11(spec *utls.ClientHelloSpec) {
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
}

func (d *NetDialer) connectTimeout() time.Duration {
	if d.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return d.ConnectTimeout
}
