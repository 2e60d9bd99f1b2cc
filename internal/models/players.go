package models

import (
	"fmt"
	"sort"
)

// Player is one participant in a room, keyed by its connection id.
type Player struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	IsHost   bool   `json:"isHost"`
	IsActive bool   `json:"isActive"`
}

// PlayersInfo maps connection ids to players. Exactly one player is host
// whenever the room has at least one player.
type PlayersInfo struct {
	Players map[string]*Player `json:"players"`
}

// NewPlayersInfo returns an empty players aggregate.
func NewPlayersInfo() *PlayersInfo {
	return &PlayersInfo{Players: make(map[string]*Player)}
}

// AddPlayer registers a player under connID with a generated display name.
// The first player to join becomes host. Adding an already present
// connection is a no-op.
func (p *PlayersInfo) AddPlayer(connID string) *Player {
	if p.Players == nil {
		p.Players = make(map[string]*Player)
	}
	if pl, ok := p.Players[connID]; ok {
		return pl
	}
	pl := &Player{
		Name:     fmt.Sprintf("Player%d", len(p.Players)+1),
		IsHost:   len(p.Players) == 0,
		IsActive: true,
	}
	p.Players[connID] = pl
	return pl
}

// RemovePlayer deletes the player for connID. If the removed player was host
// and other players remain, host status moves to the lexicographically
// smallest remaining connection id so every process picks the same successor.
func (p *PlayersInfo) RemovePlayer(connID string) {
	pl, ok := p.Players[connID]
	if !ok {
		return
	}
	delete(p.Players, connID)
	if !pl.IsHost || len(p.Players) == 0 {
		return
	}
	keys := make([]string, 0, len(p.Players))
	for id := range p.Players {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	p.Players[keys[0]].IsHost = true
}

// Get returns the player for connID, or nil if absent.
func (p *PlayersInfo) Get(connID string) *Player {
	return p.Players[connID]
}

// IsHost reports whether connID belongs to the room's host.
func (p *PlayersInfo) IsHost(connID string) bool {
	pl, ok := p.Players[connID]
	return ok && pl.IsHost
}

// Count returns the number of players in the room.
func (p *PlayersInfo) Count() int {
	return len(p.Players)
}

// RoundAnswers holds the submitted answers for one (room, round) pair,
// keyed by connection id. The first submission per connection wins.
type RoundAnswers struct {
	Answers map[string]bool `json:"answers"`
}

// NewRoundAnswers returns an empty answers aggregate.
func NewRoundAnswers() *RoundAnswers {
	return &RoundAnswers{Answers: make(map[string]bool)}
}

// Add records connID's answer. A repeated submission for the same connection
// is ignored; Add reports whether the answer was recorded.
func (r *RoundAnswers) Add(connID string, answer bool) bool {
	if r.Answers == nil {
		r.Answers = make(map[string]bool)
	}
	if _, ok := r.Answers[connID]; ok {
		return false
	}
	r.Answers[connID] = answer
	return true
}

// Get returns connID's answer and whether one was recorded.
func (r *RoundAnswers) Get(connID string) (bool, bool) {
	ans, ok := r.Answers[connID]
	return ans, ok
}

// Count returns the number of recorded answers.
func (r *RoundAnswers) Count() int {
	return len(r.Answers)
}
