package websocket

import (
	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

// PublishLine forwards one line of server output to console viewers.
func (h *Hub) PublishLine(line server.OutputLine) error {
	h.BroadcastToRoom(RoomConsole, &Message{
		Type: "console_output",
		Payload: map[string]any{
			"seq":  line.Seq,
			"line": line.Text,
		},
		Timestamp: line.Time,
	})
	return nil
}

// Notify implements server.Observer. Unrecognized lines are skipped since
// viewers already receive them as console_output.
func (h *Hub) Notify(n server.Notification) {
	msg := notificationMessage(n)
	if msg == nil {
		return
	}
	h.BroadcastToRoom(RoomConsole, msg)
}

func notificationMessage(n server.Notification) *Message {
	switch n.Kind {
	case server.NotifyEvent:
		if n.Event.Kind == server.KindUnrecognized {
			return nil
		}
		payload := map[string]any{"generation": n.Generation}
		if n.Event.Player != "" {
			payload["player"] = n.Event.Player
		}
		if n.Event.Text != "" {
			payload["text"] = n.Event.Text
		}
		return &Message{Type: n.Event.Kind.String(), Payload: payload, Timestamp: n.Line.Time}

	case server.NotifyState:
		t := n.Transition
		return &Message{
			Type: "state_changed",
			Payload: map[string]any{
				"from":       t.From.String(),
				"to":         t.To.String(),
				"pending":    t.Pending.String(),
				"reason":     t.Reason,
				"generation": n.Generation,
			},
			Timestamp: t.At,
		}

	case server.NotifyInput:
		payload := map[string]any{
			"producer": n.Producer,
			"command":  n.Text,
		}
		if n.Err != nil {
			payload["error"] = n.Err.Error()
		}
		return &Message{Type: "command_executed", Payload: payload}
	}
	return nil
}
