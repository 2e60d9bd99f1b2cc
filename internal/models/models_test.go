package models

import (
	"fmt"
	"testing"
)

func TestRoomState_AdvanceIncrementsRoundAndSetsQuestion(t *testing.T) {
	state := NewRoomState(3, 10, 1)

	for i := 1; i <= 5; i++ {
		q := Question{ID: i, Text: fmt.Sprintf("q%d", i), Answer: i%2 == 0}
		if !state.Advance(q) {
			t.Fatalf("Advance #%d reported no-op on a live room", i)
		}
		if state.CurrentRound.ID != i {
			t.Errorf("round id after %d advances = %d, want %d", i, state.CurrentRound.ID, i)
		}
		if state.CurrentRound.Question != q {
			t.Errorf("current question = %+v, want %+v", state.CurrentRound.Question, q)
		}
		if state.Stage != StageRoundInProgress {
			t.Errorf("stage after advance = %q, want %q", state.Stage, StageRoundInProgress)
		}
	}
}

func TestRoomState_FinishedIsAbsorbing(t *testing.T) {
	state := NewRoomState(3, 10, 1)
	state.Advance(Question{ID: 1})
	state.Finish()

	if state.Advance(Question{ID: 2}) {
		t.Error("Advance on a finished room should be a no-op")
	}
	if state.Stage != StageFinished {
		t.Errorf("stage = %q, want %q", state.Stage, StageFinished)
	}
	if state.CurrentRound.ID != 1 {
		t.Errorf("round id changed on a finished room: got %d, want 1", state.CurrentRound.ID)
	}
}

func TestPlayersInfo_FirstPlayerIsHost(t *testing.T) {
	pi := NewPlayersInfo()
	pi.AddPlayer("host")
	for i := 1; i < 50; i++ {
		pi.AddPlayer(fmt.Sprintf("player%d", i))
	}

	if !pi.IsHost("host") {
		t.Error("first player should be host")
	}
	if got := countHosts(pi); got != 1 {
		t.Errorf("host count = %d, want 1", got)
	}
	if pi.Count() != 50 {
		t.Errorf("player count = %d, want 50", pi.Count())
	}
}

func TestPlayersInfo_AddExistingPlayerIsNoop(t *testing.T) {
	pi := NewPlayersInfo()
	first := pi.AddPlayer("a")
	first.Score = 3
	again := pi.AddPlayer("a")

	if again != first {
		t.Error("re-adding a connection should return the existing player")
	}
	if pi.Count() != 1 {
		t.Errorf("player count = %d, want 1", pi.Count())
	}
}

func TestPlayersInfo_RemoveHostTransfersToSmallestKey(t *testing.T) {
	pi := NewPlayersInfo()
	pi.AddPlayer("m-host")
	pi.AddPlayer("z-later")
	pi.AddPlayer("a-later")

	pi.RemovePlayer("m-host")

	if !pi.IsHost("a-later") {
		t.Error("host should transfer to the lexicographically smallest remaining id")
	}
	if got := countHosts(pi); got != 1 {
		t.Errorf("host count after transfer = %d, want 1", got)
	}
}

func TestPlayersInfo_RemoveNonHostKeepsHost(t *testing.T) {
	pi := NewPlayersInfo()
	pi.AddPlayer("host")
	pi.AddPlayer("other")

	pi.RemovePlayer("other")

	if !pi.IsHost("host") {
		t.Error("removing a non-host must not move host status")
	}
}

func TestPlayersInfo_RemoveMissingPlayerIsNoop(t *testing.T) {
	pi := NewPlayersInfo()
	pi.AddPlayer("a")
	pi.RemovePlayer("ghost")
	if pi.Count() != 1 {
		t.Errorf("player count = %d, want 1", pi.Count())
	}
}

func TestPlayersInfo_IsHostUnknownPlayer(t *testing.T) {
	pi := NewPlayersInfo()
	pi.AddPlayer("a")
	if pi.IsHost("unknown") {
		t.Error("unknown connection must not be host")
	}
}

func TestRoundAnswers_FirstWriteWins(t *testing.T) {
	ra := NewRoundAnswers()
	if !ra.Add("conn", true) {
		t.Fatal("first answer should be recorded")
	}
	if ra.Add("conn", false) {
		t.Error("second answer for the same connection should be ignored")
	}

	ans, ok := ra.Get("conn")
	if !ok || ans != true {
		t.Errorf("answer = %v/%v, want true recorded", ans, ok)
	}
	if ra.Count() != 1 {
		t.Errorf("answer count = %d, want 1", ra.Count())
	}
}

func countHosts(pi *PlayersInfo) int {
	n := 0
	for _, pl := range pi.Players {
		if pl.IsHost {
			n++
		}
	}
	return n
}
