// Package rooms implements the operations the session gateway exposes to
// clients. Every mutation is a lock-guarded read-modify-publish against the
// shared store, so concurrent callers on any process never lose updates.
package rooms

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dstadnik/truefalse/internal/lock"
	"github.com/dstadnik/truefalse/internal/models"
	"github.com/dstadnik/truefalse/internal/roomsync"
)

// Room parameter bounds for creation requests. A zero timeout or delay is
// allowed: it makes rounds resolve as soon as answers arrive, which instant
// game modes use.
const (
	MaxRounds         = 100
	MaxTimeoutSeconds = 20
	MaxMidRoundDelay  = 5.0
)

const internalErrorMsg = "internal error"

// Locker guards the critical sections.
type Locker interface {
	WithLock(ctx context.Context, resource string, fn func(ctx context.Context) error) error
}

// Engine is the slice of the game engine the room operations call.
type Engine interface {
	StartGame(ctx context.Context, roomID string) (bool, error)
}

// Service exposes the room operations.
type Service struct {
	sync   roomsync.Synchronizer
	locker Locker
	engine Engine
}

// NewService wires the operations to their collaborators.
func NewService(sync roomsync.Synchronizer, locker Locker, engine Engine) *Service {
	return &Service{sync: sync, locker: locker, engine: engine}
}

// CreateRoom allocates a room id and publishes its initial state.
func (s *Service) CreateRoom(ctx context.Context, rounds, timeoutSeconds int, midRoundDelaySeconds float64) models.Result {
	if rounds < 1 || rounds > MaxRounds {
		return models.Fail("roundsNum must be between 1 and 100")
	}
	if timeoutSeconds < 0 || timeoutSeconds > MaxTimeoutSeconds {
		return models.Fail("roundTimeout must be between 0 and 20 seconds")
	}
	if midRoundDelaySeconds < 0 || midRoundDelaySeconds > MaxMidRoundDelay {
		return models.Fail("midRoundDelay must be between 0 and 5 seconds")
	}

	roomID := newRoomID()
	state := models.NewRoomState(rounds, timeoutSeconds, midRoundDelaySeconds)
	if err := s.sync.PublishRoomState(ctx, roomID, state); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("creating room")
		return models.Fail(internalErrorMsg)
	}
	log.Info().Str("room_id", roomID).Int("rounds", rounds).Msg("room created")
	return models.OK(map[string]string{"roomId": roomID})
}

// JoinRoom adds the connection to the room's player list. The first player
// to join becomes host. Joining twice is harmless.
func (s *Service) JoinRoom(ctx context.Context, roomID, connID string) models.Result {
	var joined *models.Player
	err := s.locker.WithLock(ctx, roomsync.PlayersKey(roomID), func(ctx context.Context) error {
		if _, err := s.sync.RoomState(ctx, roomID); err != nil {
			return err
		}
		players, err := s.sync.PlayersInfo(ctx, roomID)
		if errors.Is(err, roomsync.ErrNotFound) {
			players = models.NewPlayersInfo()
		} else if err != nil {
			return err
		}
		joined = players.AddPlayer(connID)
		if err := s.sync.PublishPlayersInfo(ctx, roomID, players); err != nil {
			return err
		}
		return s.sync.SetConnectionRoom(ctx, connID, roomID)
	})
	if err != nil {
		return s.failure(err, "join", roomID, connID)
	}
	log.Info().Str("room_id", roomID).Str("conn_id", connID).Str("name", joined.Name).Msg("player joined")
	return models.OK(joined)
}

// SetName renames the connection's player.
func (s *Service) SetName(ctx context.Context, roomID, connID, name string) models.Result {
	if name == "" {
		return models.Fail("name must not be empty")
	}
	var renamed bool
	err := s.locker.WithLock(ctx, roomsync.PlayersKey(roomID), func(ctx context.Context) error {
		players, err := s.sync.PlayersInfo(ctx, roomID)
		if err != nil {
			return err
		}
		pl := players.Get(connID)
		if pl == nil {
			return nil
		}
		pl.Name = name
		renamed = true
		return s.sync.PublishPlayersInfo(ctx, roomID, players)
	})
	if err != nil {
		return s.failure(err, "setName", roomID, connID)
	}
	if !renamed {
		return models.Fail("player is not in this room")
	}
	return models.OK(nil)
}

// StartGame asks the engine to begin the room's round loop.
func (s *Service) StartGame(ctx context.Context, roomID string) models.Result {
	started, err := s.engine.StartGame(ctx, roomID)
	if err != nil {
		return s.failure(err, "startGame", roomID, "")
	}
	if !started {
		return models.Fail("game already started or room not found")
	}
	return models.OK(nil)
}

// SubmitAnswer records the connection's answer for the round. The first
// submission per connection per round wins; repeats are ignored.
func (s *Service) SubmitAnswer(ctx context.Context, roomID string, roundID int, connID string, answer bool) models.Result {
	var accepted bool
	err := s.locker.WithLock(ctx, roomsync.AnswersKey(roomID, roundID), func(ctx context.Context) error {
		state, err := s.sync.RoomState(ctx, roomID)
		if err != nil {
			return err
		}
		if state.Stage != models.StageRoundInProgress || state.CurrentRound.ID != roundID {
			return nil
		}
		answers, err := s.sync.RoundAnswers(ctx, roomID, roundID)
		if errors.Is(err, roomsync.ErrNotFound) {
			answers = models.NewRoundAnswers()
		} else if err != nil {
			return err
		}
		accepted = true
		if !answers.Add(connID, answer) {
			// First write won already; nothing new to publish.
			return nil
		}
		return s.sync.PublishRoundAnswers(ctx, roomID, roundID, answers)
	})
	if err != nil {
		return s.failure(err, "submitAnswer", roomID, connID)
	}
	if !accepted {
		return models.Fail("round is not accepting answers")
	}
	return models.OK(nil)
}

// GetState returns the room's current state, or a failure when the room is
// unknown.
func (s *Service) GetState(ctx context.Context, roomID string) models.Result {
	state, err := s.sync.RoomState(ctx, roomID)
	if errors.Is(err, roomsync.ErrNotFound) {
		return models.Fail("room not found")
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("getState failed")
		return models.Fail(internalErrorMsg)
	}
	return models.OK(state)
}

// Disconnect removes the connection's player from whatever room it last
// joined. Publishing the shrunken player list is what eventually tears the
// room down when the last player leaves.
func (s *Service) Disconnect(ctx context.Context, connID string) {
	roomID, err := s.sync.RoomForConnection(ctx, connID)
	if err != nil {
		log.Error().Err(err).Str("conn_id", connID).Msg("resolving room on disconnect")
		return
	}
	if roomID == "" {
		return
	}
	err = s.locker.WithLock(ctx, roomsync.PlayersKey(roomID), func(ctx context.Context) error {
		players, err := s.sync.PlayersInfo(ctx, roomID)
		if errors.Is(err, roomsync.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if players.Get(connID) == nil {
			return nil
		}
		players.RemovePlayer(connID)
		return s.sync.PublishPlayersInfo(ctx, roomID, players)
	})
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("conn_id", connID).Msg("removing player on disconnect")
	}
	if err := s.sync.ClearConnectionRoom(ctx, connID); err != nil {
		log.Error().Err(err).Str("conn_id", connID).Msg("clearing connection index")
	}
	log.Info().Str("room_id", roomID).Str("conn_id", connID).Msg("player disconnected")
}

// failure maps internal errors onto the uniform result envelope without
// leaking details to the caller.
func (s *Service) failure(err error, op, roomID, connID string) models.Result {
	if errors.Is(err, roomsync.ErrNotFound) {
		return models.Fail("room not found")
	}
	evt := log.Error().Err(err).Str("op", op).Str("room_id", roomID)
	if connID != "" {
		evt = evt.Str("conn_id", connID)
	}
	if errors.Is(err, lock.ErrLockTimeout) {
		evt.Msg("lock acquisition timed out")
	} else {
		evt.Msg("room operation failed")
	}
	return models.Fail(internalErrorMsg)
}

// newRoomID returns an 8-byte random id in URL-safe base64.
func newRoomID() string {
	code := make([]byte, 8)
	if _, err := rand.Read(code); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(code)
}
