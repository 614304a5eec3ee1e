package server

import (
	"sort"
	"time"
)

// Player is an online player and the time their join was observed.
type Player struct {
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

// PlayerSet tracks online players. It is not safe for concurrent use; the
// supervisor guards it together with the process state.
type PlayerSet struct {
	players map[string]time.Time
}

func NewPlayerSet() *PlayerSet {
	return &PlayerSet{players: make(map[string]time.Time)}
}

// Join records name as online. A repeated join keeps the first timestamp.
func (s *PlayerSet) Join(name string, at time.Time) bool {
	if _, ok := s.players[name]; ok {
		return false
	}
	s.players[name] = at
	return true
}

// Leave removes name. Unknown names are ignored.
func (s *PlayerSet) Leave(name string) bool {
	if _, ok := s.players[name]; !ok {
		return false
	}
	delete(s.players, name)
	return true
}

// Apply updates the set from a classified event and reports whether it changed.
func (s *PlayerSet) Apply(ev Event, at time.Time) bool {
	switch ev.Kind {
	case KindPlayerJoined:
		return s.Join(ev.Player, at)
	case KindPlayerLeft:
		return s.Leave(ev.Player)
	default:
		return false
	}
}

func (s *PlayerSet) Clear() {
	clear(s.players)
}

func (s *PlayerSet) Len() int {
	return len(s.players)
}

func (s *PlayerSet) Contains(name string) bool {
	_, ok := s.players[name]
	return ok
}

// Snapshot returns the players sorted by name.
func (s *PlayerSet) Snapshot() []Player {
	out := make([]Player, 0, len(s.players))
	for name, at := range s.players {
		out = append(out, Player{Name: name, JoinedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
