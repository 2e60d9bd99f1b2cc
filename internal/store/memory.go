package store

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Memory is an in-process Store for tests and single-process development.
// It mirrors the Redis semantics the rest of the system relies on: per-key
// expiry and glob-pattern channel subscriptions.
type Memory struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]memoryEntry
	subs    map[*memorySub]struct{}
	closed  bool
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type memorySub struct {
	pattern *regexp.Regexp
	in      chan Message
	out     chan Message
	done    chan struct{}
}

// forward moves messages from the publish side to the subscriber. It is the
// only goroutine that closes out, so publishers can never hit a closed
// channel.
func (s *memorySub) forward() {
	for {
		select {
		case msg := <-s.in:
			select {
			case s.out <- msg:
			case <-s.done:
				close(s.out)
				return
			}
		case <-s.done:
			close(s.out)
			return
		}
	}
}

// NewMemory returns an empty in-memory store using clock for expiry.
func NewMemory(clock clockwork.Clock) *Memory {
	return &Memory{
		clock:   clock,
		entries: make(map[string]memoryEntry),
		subs:    make(map[*memorySub]struct{}),
	}
}

func (m *Memory) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && m.clock.Now().After(e.expiresAt)
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || m.expired(e) {
		delete(m.entries, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = m.entry(value, ttl)
	return nil
}

func (m *Memory) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && !m.expired(e) {
		return false, nil
	}
	m.entries[key] = m.entry(value, ttl)
	return true, nil
}

func (m *Memory) entry(value string, ttl time.Duration) memoryEntry {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}
	return e
}

func (m *Memory) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || m.expired(e) || e.value != value {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

func (m *Memory) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *Memory) DelPattern(ctx context.Context, pattern string) error {
	re := globToRegexp(pattern)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if re.MatchString(key) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *Memory) Publish(ctx context.Context, channel, payload string) error {
	m.mu.Lock()
	var targets []*memorySub
	for sub := range m.subs {
		if sub.pattern.MatchString(channel) {
			targets = append(targets, sub)
		}
	}
	m.mu.Unlock()

	msg := Message{Channel: channel, Payload: payload}
	for _, sub := range targets {
		select {
		case sub.in <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Memory) PSubscribe(ctx context.Context, pattern string) (<-chan Message, func(), error) {
	sub := &memorySub{
		pattern: globToRegexp(pattern),
		in:      make(chan Message, 256),
		out:     make(chan Message),
		done:    make(chan struct{}),
	}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()
	go sub.forward()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, sub)
			m.mu.Unlock()
			close(sub.done)
		})
	}
	return sub.out, stop, nil
}

func (m *Memory) Close() error {
	return nil
}

// globToRegexp translates a Redis-style glob pattern ('*' and '?') into an
// anchored regular expression.
func globToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
