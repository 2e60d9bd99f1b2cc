// Package roomsync provides the typed read/write/publish interface over the
// shared state store for the three mutable room aggregates plus the
// connection→room reverse index.
package roomsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dstadnik/truefalse/internal/models"
	"github.com/dstadnik/truefalse/internal/store"
)

// ErrNotFound reports that an aggregate is absent from the store. Read paths
// treat it as a normal negative result, not a fault.
var ErrNotFound = store.ErrNotFound

// Aggregate expiries. Every publish refreshes the TTL.
const (
	stateTTL   = 5 * time.Minute
	playersTTL = time.Hour
	answersTTL = 5 * time.Minute
)

// StoreError wraps a store or serialization fault with the operation and key
// it happened on.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("roomsync: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Synchronizer is the room-state coordination contract shared by the game
// engine, the room operations and the dispatcher.
type Synchronizer interface {
	RoomState(ctx context.Context, roomID string) (*models.RoomState, error)
	PublishRoomState(ctx context.Context, roomID string, state *models.RoomState) error
	PlayersInfo(ctx context.Context, roomID string) (*models.PlayersInfo, error)
	PublishPlayersInfo(ctx context.Context, roomID string, players *models.PlayersInfo) error
	RoundAnswers(ctx context.Context, roomID string, roundID int) (*models.RoundAnswers, error)
	PublishRoundAnswers(ctx context.Context, roomID string, roundID int, answers *models.RoundAnswers) error
	RemoveAll(ctx context.Context, roomID string) error

	RoomForConnection(ctx context.Context, connID string) (string, error)
	SetConnectionRoom(ctx context.Context, connID, roomID string) error
	ClearConnectionRoom(ctx context.Context, connID string) error
}

// Sync implements Synchronizer over a shared state store.
type Sync struct {
	store store.Store
}

// New returns a Synchronizer backed by s.
func New(s store.Store) *Sync {
	return &Sync{store: s}
}

var _ Synchronizer = (*Sync)(nil)

func (s *Sync) RoomState(ctx context.Context, roomID string) (*models.RoomState, error) {
	return getObject[models.RoomState](ctx, s.store, StateKey(roomID))
}

func (s *Sync) PublishRoomState(ctx context.Context, roomID string, state *models.RoomState) error {
	return s.publishObject(ctx, StateKey(roomID), state, stateTTL)
}

func (s *Sync) PlayersInfo(ctx context.Context, roomID string) (*models.PlayersInfo, error) {
	return getObject[models.PlayersInfo](ctx, s.store, PlayersKey(roomID))
}

func (s *Sync) PublishPlayersInfo(ctx context.Context, roomID string, players *models.PlayersInfo) error {
	return s.publishObject(ctx, PlayersKey(roomID), players, playersTTL)
}

func (s *Sync) RoundAnswers(ctx context.Context, roomID string, roundID int) (*models.RoundAnswers, error) {
	return getObject[models.RoundAnswers](ctx, s.store, AnswersKey(roomID, roundID))
}

func (s *Sync) PublishRoundAnswers(ctx context.Context, roomID string, roundID int, answers *models.RoundAnswers) error {
	return s.publishObject(ctx, AnswersKey(roomID, roundID), answers, answersTTL)
}

// RemoveAll deletes every key the room owns. Absent keys are fine; teardown
// may run on more than one process.
func (s *Sync) RemoveAll(ctx context.Context, roomID string) error {
	if err := s.store.Del(ctx, StateKey(roomID), PlayersKey(roomID)); err != nil {
		return &StoreError{Op: "del", Key: StateKey(roomID), Err: err}
	}
	pattern := fmt.Sprintf("answers:%s:*", roomID)
	if err := s.store.DelPattern(ctx, pattern); err != nil {
		return &StoreError{Op: "del-pattern", Key: pattern, Err: err}
	}
	return nil
}

// RoomForConnection returns the room the connection last joined, or "" if
// the index has no entry.
func (s *Sync) RoomForConnection(ctx context.Context, connID string) (string, error) {
	roomID, err := s.store.Get(ctx, ConnKey(connID))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", &StoreError{Op: "get", Key: ConnKey(connID), Err: err}
	}
	return roomID, nil
}

func (s *Sync) SetConnectionRoom(ctx context.Context, connID, roomID string) error {
	if err := s.store.Set(ctx, ConnKey(connID), roomID, playersTTL); err != nil {
		return &StoreError{Op: "set", Key: ConnKey(connID), Err: err}
	}
	return nil
}

func (s *Sync) ClearConnectionRoom(ctx context.Context, connID string) error {
	if err := s.store.Del(ctx, ConnKey(connID)); err != nil {
		return &StoreError{Op: "del", Key: ConnKey(connID), Err: err}
	}
	return nil
}

// getObject reads and decodes one aggregate. A missing key surfaces as
// ErrNotFound; a decode failure is a hard store error, never "absent".
func getObject[T any](ctx context.Context, s store.Store, key string) (*T, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Key: key, Err: err}
	}
	var obj T
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		log.Error().Err(err).Str("key", key).Msg("corrupt aggregate in store")
		return nil, &StoreError{Op: "decode", Key: key, Err: err}
	}
	return &obj, nil
}

// publishObject persists the aggregate with its TTL and then emits it on the
// channel of the same name, in that order, so a subscriber that re-reads the
// key sees data at least as new as the notification.
func (s *Sync) publishObject(ctx context.Context, key string, obj any, ttl time.Duration) error {
	payload, err := json.Marshal(obj)
	if err != nil {
		return &StoreError{Op: "encode", Key: key, Err: err}
	}
	if err := s.store.Set(ctx, key, string(payload), ttl); err != nil {
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	if err := s.store.Publish(ctx, key, string(payload)); err != nil {
		return &StoreError{Op: "publish", Key: key, Err: err}
	}
	return nil
}
