// Package dispatch fans state-change notifications out from the shared
// store to this process's connected clients and its game engine. Every
// process runs one dispatcher, so a write on any process reaches clients on
// all of them.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dstadnik/truefalse/internal/models"
	"github.com/dstadnik/truefalse/internal/roomsync"
	"github.com/dstadnik/truefalse/internal/store"
)

// Topics pushed to the session gateway.
const (
	TopicState   = "state"
	TopicPlayers = "players"
	TopicAnswers = "answers"
)

// Broadcaster pushes a payload to every client connected to a room on this
// process.
type Broadcaster interface {
	BroadcastToRoom(roomID, topic string, payload []byte)
}

// Engine receives the store-change callbacks the game loops react to.
type Engine interface {
	OnAnswersUpdated(ctx context.Context, roomID string, roundID int, answers *models.RoundAnswers)
	OnPlayersUpdated(ctx context.Context, roomID string, players *models.PlayersInfo)
}

// Bus is the slice of the state store the dispatcher needs.
type Bus interface {
	PSubscribe(ctx context.Context, pattern string) (<-chan store.Message, func(), error)
}

// Dispatcher subscribes to the three notification patterns and drives one
// consumer loop per message type. Ordering holds within a type, not across
// types; consumers re-read the store before acting on anything, except the
// verbatim client broadcast.
type Dispatcher struct {
	bus         Bus
	broadcaster Broadcaster
	engine      Engine
}

// New wires a dispatcher to its bus and sinks.
func New(bus Bus, broadcaster Broadcaster, engine Engine) *Dispatcher {
	return &Dispatcher{bus: bus, broadcaster: broadcaster, engine: engine}
}

// Run blocks until ctx ends, then drains the queues and returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	routes := []struct {
		pattern string
		handle  func(context.Context, store.Message)
	}{
		{roomsync.StatePattern, d.handleState},
		{roomsync.PlayersPattern, d.handlePlayers},
		{roomsync.AnswersPattern, d.handleAnswers},
	}

	var wg sync.WaitGroup
	var stops []func()
	for _, route := range routes {
		msgs, stop, err := d.bus.PSubscribe(ctx, route.pattern)
		if err != nil {
			for _, s := range stops {
				s()
			}
			return fmt.Errorf("subscribe %s: %w", route.pattern, err)
		}
		stops = append(stops, stop)

		q := newQueue()
		wg.Add(2)
		go func() {
			defer wg.Done()
			defer close(q.in)
			for msg := range msgs {
				q.in <- msg
			}
		}()
		handle := route.handle
		go func() {
			defer wg.Done()
			for msg := range q.out {
				handle(ctx, msg)
			}
		}()
	}
	log.Info().Msg("dispatcher running")

	<-ctx.Done()
	for _, stop := range stops {
		stop()
	}
	wg.Wait()
	log.Info().Msg("dispatcher stopped")
	return nil
}

func (d *Dispatcher) handleState(ctx context.Context, msg store.Message) {
	roomID, ok := roomsync.RoomFromChannel(msg.Channel)
	if !ok {
		log.Warn().Str("channel", msg.Channel).Msg("unparseable state channel")
		return
	}
	d.broadcaster.BroadcastToRoom(roomID, TopicState, []byte(msg.Payload))
}

func (d *Dispatcher) handlePlayers(ctx context.Context, msg store.Message) {
	roomID, ok := roomsync.RoomFromChannel(msg.Channel)
	if !ok {
		log.Warn().Str("channel", msg.Channel).Msg("unparseable players channel")
		return
	}
	d.broadcaster.BroadcastToRoom(roomID, TopicPlayers, []byte(msg.Payload))

	var players models.PlayersInfo
	if err := json.Unmarshal([]byte(msg.Payload), &players); err != nil {
		log.Warn().Err(err).Str("channel", msg.Channel).Msg("malformed players payload")
		return
	}
	d.engine.OnPlayersUpdated(ctx, roomID, &players)
}

func (d *Dispatcher) handleAnswers(ctx context.Context, msg store.Message) {
	roomID, roundID, ok := roomsync.RoomRoundFromChannel(msg.Channel)
	if !ok {
		log.Warn().Str("channel", msg.Channel).Msg("unparseable answers channel")
		return
	}
	d.broadcaster.BroadcastToRoom(roomID, TopicAnswers, []byte(msg.Payload))

	var answers models.RoundAnswers
	if err := json.Unmarshal([]byte(msg.Payload), &answers); err != nil {
		log.Warn().Err(err).Str("channel", msg.Channel).Msg("malformed answers payload")
		return
	}
	d.engine.OnAnswersUpdated(ctx, roomID, roundID, &answers)
}
