// Package game runs the per-room round loops. Each process keeps a local
// registry of the loops it owns; the shared store plus the distributed lock
// make sure no room gets two loops across the fleet.
package game

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dstadnik/truefalse/internal/models"
	"github.com/dstadnik/truefalse/internal/questions"
	"github.com/dstadnik/truefalse/internal/roomsync"
)

// Locker is the mutual-exclusion primitive the engine runs its critical
// sections under.
type Locker interface {
	WithLock(ctx context.Context, resource string, fn func(ctx context.Context) error) error
}

// Service owns this process's active game loops.
type Service struct {
	sync       roomsync.Synchronizer
	provider   questions.Provider
	locker     Locker
	clock      clockwork.Clock
	instanceID string

	mu     sync.Mutex
	active map[string]*Game
}

// NewService returns an engine with an empty registry.
func NewService(sync roomsync.Synchronizer, provider questions.Provider, locker Locker, clock clockwork.Clock) *Service {
	return &Service{
		sync:       sync,
		provider:   provider,
		locker:     locker,
		clock:      clock,
		instanceID: uuid.NewString()[:8],
		active:     make(map[string]*Game),
	}
}

// StartGame begins the room's round loop if nothing else started it first.
// It reports false without error when this process already owns a loop for
// the room, when the room does not exist, or when another process won the
// race: whoever wins the state lock and still observes NotStarted moves the
// stage forward before releasing, so every other starter sees a non-initial
// stage and backs off.
func (s *Service) StartGame(ctx context.Context, roomID string) (bool, error) {
	s.mu.Lock()
	if _, ok := s.active[roomID]; ok {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	started := false
	err := s.locker.WithLock(ctx, roomsync.StateKey(roomID), func(ctx context.Context) error {
		state, err := s.sync.RoomState(ctx, roomID)
		if errors.Is(err, roomsync.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if state.Stage != models.StageNotStarted {
			return nil
		}
		state.Stage = models.StageWaitingForStart
		if err := s.sync.PublishRoomState(ctx, roomID, state); err != nil {
			return err
		}

		gameCtx, cancel := context.WithCancel(context.Background())
		g := newGame(roomID, state.RoundsNumber, s.sync, s.provider, s.locker, s.clock, cancel)
		s.mu.Lock()
		if _, ok := s.active[roomID]; ok {
			// A local racer got here between the registry check and the
			// distributed lock; let its loop run.
			s.mu.Unlock()
			cancel()
			return nil
		}
		s.active[roomID] = g
		s.mu.Unlock()

		go g.run(gameCtx)
		started = true
		log.Info().Str("room_id", roomID).Str("instance", s.instanceID).Msg("game started")
		return nil
	})
	if err != nil {
		return false, err
	}
	return started, nil
}

// CancelGame signals the local loop for roomID, if this process owns one.
func (s *Service) CancelGame(roomID string) {
	s.mu.Lock()
	g := s.active[roomID]
	s.mu.Unlock()
	if g != nil {
		log.Info().Str("room_id", roomID).Str("instance", s.instanceID).Msg("cancelling game")
		g.Cancel()
	}
}

// RemoveRoom tears the room down: cancels the local loop if owned, drops the
// registry entry and deletes the room's keys from the shared store.
func (s *Service) RemoveRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	g := s.active[roomID]
	delete(s.active, roomID)
	s.mu.Unlock()
	if g != nil {
		g.Cancel()
		log.Info().Str("room_id", roomID).Str("instance", s.instanceID).Msg("removed local game")
	}
	return s.sync.RemoveAll(ctx, roomID)
}

// OnAnswersUpdated reacts to an answers publish observed by the dispatcher.
// When every current player has answered, the round ends now instead of at
// the timeout.
func (s *Service) OnAnswersUpdated(ctx context.Context, roomID string, roundID int, answers *models.RoundAnswers) {
	s.mu.Lock()
	g := s.active[roomID]
	s.mu.Unlock()
	if g == nil || g.CurrentRound() != roundID {
		return
	}
	players, err := s.sync.PlayersInfo(ctx, roomID)
	if err != nil {
		if !errors.Is(err, roomsync.ErrNotFound) {
			log.Error().Err(err).Str("room_id", roomID).Msg("fetching players for early-completion check")
		}
		return
	}
	if players.Count() > 0 && answers.Count() >= players.Count() {
		if g.FinishRound(roundID) {
			log.Debug().Str("room_id", roomID).Int("round", roundID).Msg("all players answered, finishing round early")
		}
	}
}

// OnPlayersUpdated reacts to a players publish; an empty room is torn down.
func (s *Service) OnPlayersUpdated(ctx context.Context, roomID string, players *models.PlayersInfo) {
	if players.Count() > 0 {
		return
	}
	log.Debug().Str("room_id", roomID).Msg("room is empty, removing")
	if err := s.RemoveRoom(ctx, roomID); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("removing empty room")
	}
}

// CountRooms returns the number of loops this process currently owns.
func (s *Service) CountRooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Shutdown cancels every local loop and waits for them to exit.
func (s *Service) Shutdown() {
	s.mu.Lock()
	games := make([]*Game, 0, len(s.active))
	for _, g := range s.active {
		games = append(games, g)
	}
	s.active = make(map[string]*Game)
	s.mu.Unlock()

	for _, g := range games {
		g.Cancel()
	}
	for _, g := range games {
		<-g.Done()
	}
}
