package fetch

import (
	"errors"
	"sync"
	"time"
)

// ErrHostUnavailable means the host's circuit is open
var ErrHostUnavailable = errors.New("host unavailable: circuit breaker open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type circuit struct {
	state    State
	failures uint32
	expiry   time.Time
	probing  bool
}

// breakers keeps one circuit per host. A circuit opens after threshold
// consecutive failures, admits a single probe once timeout has passed and
// closes again when the probe succeeds.
type breakers struct {
	threshold uint32
	timeout   time.Duration
	now       func() time.Time

	mu     sync.Mutex
	byHost map[string]*circuit
}

func newBreakers(threshold uint32, timeout time.Duration) *breakers {
	if threshold == 0 {
		threshold = 5
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &breakers{
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
		byHost:    make(map[string]*circuit),
	}
}

// allow reports whether a request to host may proceed
func (b *breakers) allow(host string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitLocked(host)
	switch b.stateLocked(c) {
	case StateOpen:
		return ErrHostUnavailable
	case StateHalfOpen:
		if c.probing {
			return ErrHostUnavailable
		}
		c.probing = true
	}
	return nil
}

// record reports the outcome of a request allowed by allow
func (b *breakers) record(host string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitLocked(host)
	state := b.stateLocked(c)
	c.probing = false

	if ok {
		c.state, c.failures = StateClosed, 0
		return
	}

	c.failures++
	if state == StateHalfOpen || c.failures >= b.threshold {
		c.state = StateOpen
		c.expiry = b.now().Add(b.timeout)
	}
}

// release returns an allowed request that was never sent
func (b *breakers) release(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.circuitLocked(host).probing = false
}

// state returns the circuit state of host
func (b *breakers) state(host string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked(b.circuitLocked(host))
}

func (b *breakers) circuitLocked(host string) *circuit {
	c, ok := b.byHost[host]
	if !ok {
		c = &circuit{}
		b.byHost[host] = c
	}
	return c
}

func (b *breakers) stateLocked(c *circuit) State {
	if c.state == StateOpen && !b.now().Before(c.expiry) {
		c.state = StateHalfOpen
	}
	return c.state
}
