package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dstadnik/truefalse/internal/models"
	"github.com/dstadnik/truefalse/internal/roomsync"
	"github.com/dstadnik/truefalse/internal/store"
)

type broadcastCall struct {
	roomID  string
	topic   string
	payload string
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
	block chan struct{} // when set, broadcasts for this topic park here
	topic string
}

func (b *fakeBroadcaster) BroadcastToRoom(roomID, topic string, payload []byte) {
	if b.block != nil && topic == b.topic {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{roomID, topic, string(payload)})
}

func (b *fakeBroadcaster) snapshot() []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastCall(nil), b.calls...)
}

type fakeEngine struct {
	mu              sync.Mutex
	answersRooms    []string
	answersRounds   []int
	playersUpdates  []string
	lastPlayerCount int
}

func (e *fakeEngine) OnAnswersUpdated(ctx context.Context, roomID string, roundID int, answers *models.RoundAnswers) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.answersRooms = append(e.answersRooms, roomID)
	e.answersRounds = append(e.answersRounds, roundID)
}

func (e *fakeEngine) OnPlayersUpdated(ctx context.Context, roomID string, players *models.PlayersInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playersUpdates = append(e.playersUpdates, roomID)
	e.lastPlayerCount = players.Count()
}

func runDispatcher(t *testing.T, st *store.Memory, b Broadcaster, e Engine) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		New(st, b, e).Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("dispatcher did not stop")
		}
	})
	// Give the three subscriptions a moment to register.
	time.Sleep(10 * time.Millisecond)
	return cancel
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDispatcher_RoutesByChannelType(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(clockwork.NewRealClock())
	b := &fakeBroadcaster{}
	e := &fakeEngine{}
	runDispatcher(t, st, b, e)

	statePayload, _ := json.Marshal(models.NewRoomState(2, 10, 0))
	st.Publish(ctx, roomsync.StateKey("room1"), string(statePayload))

	pi := models.NewPlayersInfo()
	pi.AddPlayer("conn1")
	playersPayload, _ := json.Marshal(pi)
	st.Publish(ctx, roomsync.PlayersKey("room1"), string(playersPayload))

	ra := models.NewRoundAnswers()
	ra.Add("conn1", true)
	answersPayload, _ := json.Marshal(ra)
	st.Publish(ctx, roomsync.AnswersKey("room1", 2), string(answersPayload))

	waitFor(t, func() bool { return len(b.snapshot()) == 3 }, "three broadcasts")

	topics := map[string]string{}
	for _, c := range b.snapshot() {
		if c.roomID != "room1" {
			t.Errorf("broadcast to room %q, want room1", c.roomID)
		}
		topics[c.topic] = c.payload
	}
	if topics[TopicState] != string(statePayload) {
		t.Errorf("state payload = %q, want verbatim %q", topics[TopicState], statePayload)
	}
	if topics[TopicPlayers] != string(playersPayload) {
		t.Errorf("players payload not forwarded verbatim")
	}
	if topics[TopicAnswers] != string(answersPayload) {
		t.Errorf("answers payload not forwarded verbatim")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.playersUpdates) != 1 || e.playersUpdates[0] != "room1" || e.lastPlayerCount != 1 {
		t.Errorf("players callback = %v (count %d), want one call for room1", e.playersUpdates, e.lastPlayerCount)
	}
	if len(e.answersRooms) != 1 || e.answersRooms[0] != "room1" || e.answersRounds[0] != 2 {
		t.Errorf("answers callback = %v round %v, want room1 round 2", e.answersRooms, e.answersRounds)
	}
}

func TestDispatcher_SlowTypeDoesNotStallOthers(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(clockwork.NewRealClock())
	release := make(chan struct{})
	b := &fakeBroadcaster{block: release, topic: TopicState}
	e := &fakeEngine{}
	runDispatcher(t, st, b, e)

	// Park the state consumer, then keep feeding it while players traffic
	// flows on its own queue.
	for i := 0; i < 50; i++ {
		st.Publish(ctx, roomsync.StateKey("room1"), "{}")
	}
	playersPayload, _ := json.Marshal(models.NewPlayersInfo())
	st.Publish(ctx, roomsync.PlayersKey("room1"), string(playersPayload))

	waitFor(t, func() bool {
		for _, c := range b.snapshot() {
			if c.topic == TopicPlayers {
				return true
			}
		}
		return false
	}, "players broadcast while state consumer is blocked")

	close(release)
	waitFor(t, func() bool { return len(b.snapshot()) == 51 }, "state backlog to drain")
}

func TestDispatcher_MalformedPayloadStillBroadcast(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(clockwork.NewRealClock())
	b := &fakeBroadcaster{}
	e := &fakeEngine{}
	runDispatcher(t, st, b, e)

	st.Publish(ctx, roomsync.PlayersKey("room1"), "{broken")

	waitFor(t, func() bool { return len(b.snapshot()) == 1 }, "broadcast of malformed payload")

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.playersUpdates) != 0 {
		t.Error("engine callback must not fire on a malformed payload")
	}
}
