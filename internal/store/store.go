// Package store abstracts the shared key/value + pub/sub system that every
// server process coordinates through. The production implementation is
// Redis; an in-memory implementation backs tests and single-process
// development.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// Message is one pub/sub notification delivered to a pattern subscriber.
type Message struct {
	Channel string
	Payload string
}

// Store is the shared state store contract. All methods are safe for
// concurrent use.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set writes key with a time-to-live. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes key only if it does not exist and reports whether the
	// write happened. Used for lock leases.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Del removes keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
	// DelIfEquals removes key only when its current value equals value,
	// atomically, and reports whether the delete happened. Used for
	// token-checked lock release.
	DelIfEquals(ctx context.Context, key, value string) (bool, error)
	// DelPattern removes every key matching a glob pattern.
	DelPattern(ctx context.Context, pattern string) error
	// Publish emits payload on a channel.
	Publish(ctx context.Context, channel, payload string) error
	// PSubscribe subscribes to every channel matching a glob pattern.
	// The returned stop function releases the subscription and closes the
	// message channel.
	PSubscribe(ctx context.Context, pattern string) (<-chan Message, func(), error)
	// Close releases the underlying connection.
	Close() error
}
