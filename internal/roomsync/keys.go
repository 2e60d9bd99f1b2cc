package roomsync

import (
	"fmt"
	"strconv"
	"strings"
)

// Key and channel layout on the shared state store. A publish always uses
// the same name for the key and the pub/sub channel.
const (
	StatePattern   = "state:*"
	PlayersPattern = "players:*"
	AnswersPattern = "answers:*:*"
)

// StateKey returns the room-state key for a room.
func StateKey(roomID string) string {
	return "state:" + roomID
}

// PlayersKey returns the players key for a room.
func PlayersKey(roomID string) string {
	return "players:" + roomID
}

// AnswersKey returns the answers key for one round of a room.
func AnswersKey(roomID string, roundID int) string {
	return fmt.Sprintf("answers:%s:%d", roomID, roundID)
}

// ConnKey returns the connection→room reverse-index key.
func ConnKey(connID string) string {
	return "conn:" + connID
}

// RoomFromChannel extracts the room id from a state or players channel name.
func RoomFromChannel(channel string) (string, bool) {
	_, room, ok := strings.Cut(channel, ":")
	if !ok || room == "" {
		return "", false
	}
	return room, true
}

// RoomRoundFromChannel extracts the room and round ids from an answers
// channel name ("answers:{roomId}:{roundId}").
func RoomRoundFromChannel(channel string) (string, int, bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[1] == "" {
		return "", 0, false
	}
	round, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, false
	}
	return parts[1], round, true
}
