package limiter

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim          *rate.Limiter
	blockedUntil time.Time
	seen         time.Time
}

// Memory is a process-local limiter. Each pair owns a token bucket of
// MaxFails tokens refilled over Window; every failure spends one token and an
// empty bucket places a block.
type Memory struct {
	mu      sync.Mutex
	policy  Policy
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(p Policy) *Memory {
	return &Memory{policy: p.normalized(), buckets: make(map[string]*bucket), now: time.Now}
}

func memKey(identity string, ipHash []byte) string {
	return key(identity) + "|" + hex.EncodeToString(ipHash)
}

func (m *Memory) Allow(_ context.Context, identity string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[memKey(identity, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if left := b.blockedUntil.Sub(m.now()); left > 0 {
		return false, left, nil
	}
	return true, 0, nil
}

func (m *Memory) Success(_ context.Context, identity string, ipHash []byte) error {
	m.mu.Lock()
	delete(m.buckets, memKey(identity, ipHash))
	m.mu.Unlock()
	return nil
}

func (m *Memory) Failure(_ context.Context, identity string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	k := memKey(identity, ipHash)
	b, ok := m.buckets[k]
	if !ok {
		every := m.policy.Window / time.Duration(m.policy.MaxFails)
		b = &bucket{lim: rate.NewLimiter(rate.Every(every), m.policy.MaxFails)}
		m.buckets[k] = b
	}
	b.seen = now
	b.lim.AllowN(now, 1)
	if b.lim.TokensAt(now) >= 1 {
		return false, 0, nil
	}
	b.blockedUntil = now.Add(m.policy.BlockFor)
	return true, m.policy.BlockFor, nil
}

// Sweep drops buckets idle for longer than the window and not blocked.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, b := range m.buckets {
		if now.Sub(b.seen) > m.policy.Window && !b.blockedUntil.After(now) {
			delete(m.buckets, k)
			n++
		}
	}
	return n
}
