// Package identity provides the pool of browser User-Agent strings requests
// are sent with. One entry is picked uniformly at random per request.
package identity

import (
	"math/rand"
	"sync"
	"time"
)

// DefaultUserAgents is used when no pool is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 6.1) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/41.0.2228.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/41.0.2227.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/42.0.2311.135 Safari/537.36 Edge/12.246",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_9_3) AppleWebKit/537.75.14 (KHTML, like Gecko) Version/7.0.3 Safari/7046A194A",
	"Mozilla/5.0 (iPad; CPU OS 6_0 like Mac OS X) AppleWebKit/536.26 (KHTML, like Gecko) Version/6.0 Mobile/10A5355d Safari/8536.25",
	"Mozilla/5.0 (PLAYSTATION 3; 3.55)",
	"Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.1 (KHTML, like Gecko) Chrome/21.0.1180.89 Safari/537.1 QIHU 360SE",
	"Mozilla/4.0 (compatible; MSIE 7.0; Windows NT 6.1; Trident/5.0; SLCC2; .NET CLR 2.0.50727; .NET CLR 3.5.30729; .NET CLR 3.0.30729; Media Center PC 6.0; 360SE)",
	"Mozilla/5.0 (PlayStation 4 1.000) AppleWebKit/536.26 (KHTML, like Gecko)",
	"Mozilla/5.0 (Playstation Vita 1.61) AppleWebKit/531.22.8 (KHTML, like Gecko) Silk/3.2",
	"Mozilla/5.0 (compatible; Konqueror/4.1; OpenBSD) KHTML/4.1.4 (like Gecko)",
	"Mozilla/5.0 (compatible; Konqueror/4.5; FreeBSD) KHTML/4.5.4 (like Gecko)",
	"Mozilla/5.0 (Macintosh; U; Intel Mac OS X 10.5; ko; rv:1.9.1b2) Gecko/20081201 Firefox/3.1b2",
}

// Pool picks User-Agent strings at random. It is safe for concurrent use.
type Pool struct {
	agents []string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPool returns a pool over agents, or over DefaultUserAgents when agents
// is empty.
func NewPool(agents []string) *Pool {
	return NewPoolWithSource(agents, rand.NewSource(time.Now().UnixNano()))
}

// NewPoolWithSource is NewPool with a caller supplied random source.
func NewPoolWithSource(agents []string, src rand.Source) *Pool {
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	p := &Pool{
		agents: make([]string, len(agents)),
		rnd:    rand.New(src),
	}
	copy(p.agents, agents)
	return p
}

// Pick returns one agent chosen uniformly at random.
func (p *Pool) Pick() string {
	p.mu.Lock()
	i := p.rnd.Intn(len(p.agents))
	p.mu.Unlock()
	return p.agents[i]
}

// Len returns the pool size.
func (p *Pool) Len() int {
	return len(p.agents)
}

// Agents returns a copy of the pool.
func (p *Pool) Agents() []string {
	out := make([]string, len(p.agents))
	copy(out, p.agents)
	return out
}
