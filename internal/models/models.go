package models

// Question is a single true/false question. Questions are immutable once
// issued to a round; the game only reads them.
type Question struct {
	ID     int    `json:"id"`
	Text   string `json:"text"`
	Answer bool   `json:"answer"`
}

// Round is one question-and-answer cycle within a room. Ids start at 0 and
// only ever grow; id 0 means no round has started yet.
type Round struct {
	ID       int      `json:"id"`
	Question Question `json:"question"`
}

// Stage describes where a room is in its lifecycle. Transitions are monotone:
// notStarted -> waitingForStart -> roundInProgress -> finished.
type Stage string

const (
	StageNotStarted      Stage = "notStarted"
	StageWaitingForStart Stage = "waitingForStart"
	StageRoundInProgress Stage = "roundInProgress"
	StageFinished        Stage = "finished"
)

// RoomState is the shared per-room game state. It lives in the state store;
// no process keeps an authoritative copy beyond a single operation.
type RoomState struct {
	Stage                Stage   `json:"stage"`
	RoundsNumber         int     `json:"roundsNumber"`
	RoundTimeoutSeconds  int     `json:"roundTimeoutSeconds"`
	MidRoundDelaySeconds float64 `json:"midRoundDelaySeconds"`
	CurrentRound         Round   `json:"currentRound"`
}

// NewRoomState returns the initial state for a freshly created room.
func NewRoomState(rounds, timeoutSeconds int, midRoundDelaySeconds float64) *RoomState {
	return &RoomState{
		Stage:                StageNotStarted,
		RoundsNumber:         rounds,
		RoundTimeoutSeconds:  timeoutSeconds,
		MidRoundDelaySeconds: midRoundDelaySeconds,
	}
}

// Advance moves the room to the next round with the given question and marks
// the round as in progress. On a finished room it is a no-op and reports false.
func (s *RoomState) Advance(q Question) bool {
	if s.Stage == StageFinished {
		return false
	}
	s.Stage = StageRoundInProgress
	s.CurrentRound.ID++
	s.CurrentRound.Question = q
	return true
}

// Finish marks the room as finished. Finished is absorbing.
func (s *RoomState) Finish() {
	s.Stage = StageFinished
}
