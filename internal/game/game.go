package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/dstadnik/truefalse/internal/models"
	"github.com/dstadnik/truefalse/internal/questions"
	"github.com/dstadnik/truefalse/internal/roomsync"
)

var (
	errQuestionsExhausted = errors.New("game: question source exhausted")
	errRoomGone           = errors.New("game: room state no longer advances")
)

// Game drives one room's round sequence on the process that owns it. All
// state it publishes lives in the shared store; the struct itself only holds
// the loop's control plumbing.
type Game struct {
	roomID   string
	rounds   int
	sync     roomsync.Synchronizer
	provider questions.Provider
	locker   Locker
	clock    clockwork.Clock

	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.Mutex
	timer        *RoundTimer
	currentRound int
}

func newGame(roomID string, rounds int, sync roomsync.Synchronizer, provider questions.Provider, locker Locker, clock clockwork.Clock, cancel context.CancelFunc) *Game {
	return &Game{
		roomID:   roomID,
		rounds:   rounds,
		sync:     sync,
		provider: provider,
		locker:   locker,
		clock:    clock,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// CurrentRound returns the id of the round the loop is currently running,
// or 0 before the first round.
func (g *Game) CurrentRound() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentRound
}

// FinishRound cancels the running round timer if roundID is still the
// current round. Late or stale requests are ignored.
func (g *Game) FinishRound(roundID int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer == nil || g.currentRound != roundID {
		return false
	}
	g.timer.Cancel()
	return true
}

// Cancel requests cooperative termination of the loop. The loop observes it
// at its next suspension point and exits without publishing a finished state.
func (g *Game) Cancel() {
	g.cancel()
}

// Done closes when the loop has exited.
func (g *Game) Done() <-chan struct{} {
	return g.done
}

// run is the round loop. One goroutine per active room per process.
func (g *Game) run(ctx context.Context) {
	defer close(g.done)
	log.Info().Str("room_id", g.roomID).Int("rounds", g.rounds).Msg("game loop started")

	for i := 1; i <= g.rounds; i++ {
		err := g.playRound(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) {
			log.Info().Str("room_id", g.roomID).Int("round", i).Msg("game loop cancelled")
			return
		}
		if errors.Is(err, errQuestionsExhausted) {
			log.Warn().Str("room_id", g.roomID).Int("round", i).Msg("out of questions, finishing early")
			break
		}
		// The room is left in its last published stage; teardown is an
		// explicit RemoveRoom or the players going to zero.
		log.Error().Err(err).Str("room_id", g.roomID).Int("round", i).Msg("game loop aborted")
		return
	}

	if ctx.Err() != nil {
		log.Info().Str("room_id", g.roomID).Msg("game loop cancelled before finish")
		return
	}
	if err := g.finish(ctx); err != nil {
		log.Error().Err(err).Str("room_id", g.roomID).Msg("failed to publish finished state")
	}
	log.Info().Str("room_id", g.roomID).Msg("game loop finished")
}

func (g *Game) playRound(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	qs, err := g.provider.Next(ctx, 1)
	if err != nil {
		return err
	}
	if len(qs) == 0 {
		return errQuestionsExhausted
	}
	q := qs[0]

	var (
		roundID int
		timeout time.Duration
		delay   time.Duration
		timer   *RoundTimer
	)
	err = g.locker.WithLock(ctx, roomsync.StateKey(g.roomID), func(ctx context.Context) error {
		state, err := g.sync.RoomState(ctx, g.roomID)
		if err != nil {
			return err
		}
		if !state.Advance(q) {
			return errRoomGone
		}
		roundID = state.CurrentRound.ID
		timeout = time.Duration(state.RoundTimeoutSeconds) * time.Second
		delay = time.Duration(state.MidRoundDelaySeconds * float64(time.Second))

		// Arm the early-completion path before the state becomes visible,
		// so an answer arriving right after the publish is not missed.
		timer = NewRoundTimer(g.clock)
		g.mu.Lock()
		g.timer = timer
		g.currentRound = roundID
		g.mu.Unlock()

		return g.sync.PublishRoomState(ctx, g.roomID, state)
	})
	if err != nil {
		return err
	}

	log.Debug().Str("room_id", g.roomID).Int("round", roundID).Int("question_id", q.ID).Msg("round started")
	if err := timer.Start(ctx, timeout); err != nil {
		return err
	}
	if err := g.scoreRound(ctx, q, roundID); err != nil {
		return err
	}
	if delay > 0 {
		select {
		case <-g.clock.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// scoreRound awards one point to every player whose recorded answer matches
// the question. Wrong or missing answers cost nothing.
func (g *Game) scoreRound(ctx context.Context, q models.Question, roundID int) error {
	return g.locker.WithLock(ctx, roomsync.PlayersKey(g.roomID), func(ctx context.Context) error {
		players, err := g.sync.PlayersInfo(ctx, g.roomID)
		if errors.Is(err, roomsync.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		answers, err := g.sync.RoundAnswers(ctx, g.roomID, roundID)
		if errors.Is(err, roomsync.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for connID, ans := range answers.Answers {
			if ans != q.Answer {
				continue
			}
			if pl := players.Get(connID); pl != nil {
				pl.Score++
			}
		}
		log.Debug().Str("room_id", g.roomID).Int("round", roundID).Int("answers", answers.Count()).Msg("round scored")
		return g.sync.PublishPlayersInfo(ctx, g.roomID, players)
	})
}

func (g *Game) finish(ctx context.Context) error {
	return g.locker.WithLock(ctx, roomsync.StateKey(g.roomID), func(ctx context.Context) error {
		state, err := g.sync.RoomState(ctx, g.roomID)
		if err != nil {
			return err
		}
		state.Finish()
		return g.sync.PublishRoomState(ctx, g.roomID, state)
	})
}
