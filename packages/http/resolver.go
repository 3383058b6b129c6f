package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultDNSPort    = "53"
	defaultDNSTimeout = 5 * time.Second
)

// Resolver looks hosts up against an explicit list of DNS servers instead of
// the system resolver. A records are tried before AAAA; answers are cached for
// the lifetime of the Resolver.
type Resolver struct {
	servers []string
	client  *dns.Client

	mu    sync.Mutex
	cache map[string]net.IP
}

// NewResolver returns a Resolver querying servers in order. Entries without a
// port use 53.
func NewResolver(servers []string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}
	r := &Resolver{
		client: &dns.Client{Timeout: timeout},
		cache:  make(map[string]net.IP),
	}
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, defaultDNSPort)
		}
		r.servers = append(r.servers, s)
	}
	return r
}

// Resolve returns an address for host. IP literals are returned as is.
func (r *Resolver) Resolve(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	r.mu.Lock()
	ip, ok := r.cache[host]
	r.mu.Unlock()
	if ok {
		return ip, nil
	}

	if len(r.servers) == 0 {
		return nil, errors.New("no DNS servers configured")
	}

	var lastErr error
	for _, server := range r.servers {
		for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
			ip, err := r.lookup(ctx, host, qtype, server)
			if err != nil {
				lastErr = err
				continue
			}
			r.mu.Lock()
			r.cache[host] = ip
			r.mu.Unlock()
			return ip, nil
		}
	}
	return nil, fmt.Errorf("resolve %s: %w", host, lastErr)
}

func (r *Resolver) lookup(ctx context.Context, host string, qtype uint16, server string) (net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)

	in, _, err := r.client.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, err
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s: %s", server, dns.RcodeToString[in.Rcode])
	}

	for _, answer := range in.Answer {
		switch rr := answer.(type) {
		case *dns.A:
			if qtype == dns.TypeA {
				return rr.A, nil
			}
		case *dns.AAAA:
			if qtype == dns.TypeAAAA {
				return rr.AAAA, nil
			}
		}
	}
	return nil, fmt.Errorf("no %s record for %s", dns.TypeToString[qtype], host)
}
