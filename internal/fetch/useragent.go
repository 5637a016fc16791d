package fetch

import "sync/atomic"

// DefaultUserAgents is a small pool of current desktop browser strings. Rotating them
// avoids the most trivial bot filters; it is not a guarantee of anything.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:131.0) Gecko/20100101 Firefox/131.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36 Edg/129.0.0.0",
}

// UserAgents hands out user agents round-robin. Safe for concurrent use.
type UserAgents struct {
	pool []string
	next atomic.Uint64
}

func NewUserAgents(pool []string) *UserAgents {
	if len(pool) == 0 {
		pool = DefaultUserAgents
	}
	cp := make([]string, len(pool))
	copy(cp, pool)
	return &UserAgents{pool: cp}
}

func (u *UserAgents) Next() string {
	n := u.next.Add(1) - 1
	return u.pool[n%uint64(len(u.pool))]
}
