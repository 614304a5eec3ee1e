package models

import (
	"time"

	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

// PlayersResponse lists the players currently online
type PlayersResponse struct {
	Players []server.Player `json:"players"`
	Count   int             `json:"count"`
}

// NewPlayersResponse wraps a player snapshot, never encoding a null list.
func NewPlayersResponse(players []server.Player) PlayersResponse {
	if players == nil {
		players = []server.Player{}
	}
	return PlayersResponse{Players: players, Count: len(players)}
}

// PlayerNames returns the names in players, in order.
func PlayerNames(players []server.Player) []string {
	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.Name)
	}
	return names
}

// CommandRequest represents a console command request
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
	// WaitAck waits for the server to acknowledge the command
	WaitAck bool `json:"wait_ack"`
}

// CommandResponse represents the response to a command
type CommandResponse struct {
	Success bool   `json:"success"`
	Command string `json:"command"`
	Ack     string `json:"ack,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StopResponse is returned once the server has stopped
type StopResponse struct {
	Status   string `json:"status"`
	LastExit string `json:"last_exit,omitempty"`
}

// ConsoleHistoryResponse carries buffered console output
type ConsoleHistoryResponse struct {
	Lines   []string `json:"lines"`
	Count   int      `json:"count"`
	Dropped uint64   `json:"dropped"`
}

// EventMessage is the wire form of a supervisor notification, shared by
// the gRPC event stream and wrapperctl.
type EventMessage struct {
	Kind       string    `json:"kind"`
	Type       string    `json:"type"`
	Generation uint64    `json:"generation"`
	Player     string    `json:"player,omitempty"`
	Text       string    `json:"text,omitempty"`
	Producer   string    `json:"producer,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Pending    string    `json:"pending,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// NewEventMessage converts a notification for transport.
func NewEventMessage(n server.Notification) EventMessage {
	msg := EventMessage{Kind: string(n.Kind), Generation: n.Generation}
	switch n.Kind {
	case server.NotifyEvent:
		msg.Type = n.Event.Kind.String()
		msg.Player = n.Event.Player
		msg.Text = n.Event.Text
		if n.Event.Kind == server.KindUnrecognized {
			msg.Text = n.Line.Text
		}
		msg.Time = n.Line.Time
	case server.NotifyState:
		msg.Type = "state_changed"
		msg.From = n.Transition.From.String()
		msg.To = n.Transition.To.String()
		msg.Pending = n.Transition.Pending.String()
		msg.Reason = n.Transition.Reason
		msg.Time = n.Transition.At
	case server.NotifyInput:
		msg.Type = "command"
		msg.Producer = n.Producer
		msg.Text = n.Text
		if n.Err != nil {
			msg.Error = n.Err.Error()
		}
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	return msg
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
