package vodafone

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMinLoginDelay is the floor between login attempts for one
// identity. Logging in more often trips the provider's abuse detection.
const DefaultMinLoginDelay = 30 * time.Second

// Pool shares one Client per credential identity across the contracts that
// use it, and serializes login attempts per identity. One account commonly
// carries several mobile lines; without the pool each line's refresh cycle
// would re-login on its own and risk an upstream lockout.
type Pool struct {
	minLoginDelay time.Duration
	logger        zerolog.Logger
	now           func() time.Time

	clientOpts []ClientOption

	mu         sync.Mutex
	clients    map[string]*Client
	loginLocks map[string]*sync.Mutex
	lastLogin  map[string]time.Time
}

func NewPool(minLoginDelay time.Duration, logger zerolog.Logger, opts ...ClientOption) *Pool {
	if minLoginDelay <= 0 {
		minLoginDelay = DefaultMinLoginDelay
	}
	return &Pool{
		minLoginDelay: minLoginDelay,
		logger:        logger.With().Str("component", "pool").Logger(),
		now:           time.Now,
		clientOpts:    opts,
		clients:       make(map[string]*Client),
		loginLocks:    make(map[string]*sync.Mutex),
		lastLogin:     make(map[string]time.Time),
	}
}

// GetOrCreate returns the pooled client for the username, constructing one
// on first sight. Construction does not imply login.
func (p *Pool) GetOrCreate(username, password string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[username]; ok {
		p.logger.Debug().Str("username", username).Msg("reusing pooled client")
		return client
	}

	p.logger.Debug().Str("username", username).Msg("creating pooled client")
	client := NewClient(username, password, p.logger, p.clientOpts...)
	p.clients[username] = client
	if _, ok := p.loginLocks[username]; !ok {
		p.loginLocks[username] = &sync.Mutex{}
	}
	return client
}

// EnsureAuthenticated makes the client authenticated, logging in at most
// once per identity at a time. Callers already holding an authenticated
// client return immediately without any network call; otherwise the
// remainder of the minimum inter-login delay is slept out before the
// attempt. The attempt timestamp is recorded whether or not login
// succeeds.
func (p *Pool) EnsureAuthenticated(ctx context.Context, client *Client, username string) bool {
	lock := p.loginLock(username)
	lock.Lock()
	defer lock.Unlock()

	if client.Authenticated() {
		p.logger.Debug().Str("username", username).Msg("session already authenticated")
		return true
	}

	p.mu.Lock()
	last, seen := p.lastLogin[username]
	p.mu.Unlock()

	if seen {
		if wait := p.minLoginDelay - p.now().Sub(last); wait > 0 {
			p.logger.Debug().
				Str("username", username).
				Dur("wait", wait).
				Msg("rate limiting login")
			if !sleepCtx(ctx, wait) {
				return false
			}
		}
	}

	p.logger.Debug().Str("username", username).Msg("performing login")
	result := client.Login(ctx)

	p.mu.Lock()
	p.lastLogin[username] = p.now()
	p.mu.Unlock()

	return result
}

// Remove closes and evicts one identity's client along with its lock and
// timing state. Used when the last contract for that account goes away so
// idle sessions do not leak.
func (p *Pool) Remove(username string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[username]; ok {
		p.logger.Debug().Str("username", username).Msg("removing pooled client")
		client.Close()
		delete(p.clients, username)
	}
	delete(p.loginLocks, username)
	delete(p.lastLogin, username)
}

// CloseAll closes every pooled client and clears all pool state.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for username, client := range p.clients {
		p.logger.Debug().Str("username", username).Msg("closing pooled client")
		client.Close()
	}
	p.clients = make(map[string]*Client)
	p.loginLocks = make(map[string]*sync.Mutex)
	p.lastLogin = make(map[string]time.Time)
}

func (p *Pool) loginLock(username string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.loginLocks[username]
	if !ok {
		lock = &sync.Mutex{}
		p.loginLocks[username] = lock
	}
	return lock
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
