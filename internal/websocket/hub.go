package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// RoomConsole carries raw console output plus supervisor events.
const RoomConsole = "console"

// Message represents a WebSocket message
type Message struct {
	Type      string         `json:"type"`
	Payload   any            `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID         string
	RemoteAddr string
	Conn       *websocket.Conn
	Room       string
	Send       chan *Message
	Hub        *Hub
	mu         sync.Mutex
}

// Hub manages all WebSocket connections and rooms
type Hub struct {
	// Registered clients grouped by room
	rooms map[string]map[*Client]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Broadcast messages to room
	broadcast chan *BroadcastMessage

	// Active clients by ID for quick lookup
	clients map[string]*Client

	dropped atomic.Uint64
	done    chan struct{}

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast to a room
type BroadcastMessage struct {
	Room    string
	Message *Message
	Exclude *Client // Optional: exclude this client from broadcast
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 1024),
		clients:    make(map[string]*Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToRoom(message)

		case <-ctx.Done():
			log.Println("[WebSocket] Hub shutting down")
			h.shutdown()
			return
		}
	}
}

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// registerClient adds a client to a room
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client

	if h.rooms[client.Room] == nil {
		h.rooms[client.Room] = make(map[*Client]bool)
	}
	h.rooms[client.Room][client] = true

	log.Printf("[WebSocket] Client %s (%s) joined room %s. Room size: %d",
		client.ID, client.RemoteAddr, client.Room, len(h.rooms[client.Room]))

	h.enqueue(&BroadcastMessage{
		Room: client.Room,
		Message: &Message{
			Type: "viewer_joined",
			Payload: map[string]any{
				"client_id": client.ID,
				"viewers":   len(h.rooms[client.Room]),
			},
			Timestamp: time.Now(),
		},
		Exclude: client,
	})
}

// unregisterClient removes a client from a room
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, client.ID)

	clients, ok := h.rooms[client.Room]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)

	if len(clients) == 0 {
		delete(h.rooms, client.Room)
		log.Printf("[WebSocket] Room %s is now empty and removed", client.Room)
		return
	}

	log.Printf("[WebSocket] Client %s left room %s. Room size: %d",
		client.ID, client.Room, len(clients))

	h.enqueue(&BroadcastMessage{
		Room: client.Room,
		Message: &Message{
			Type: "viewer_left",
			Payload: map[string]any{
				"client_id": client.ID,
				"viewers":   len(clients),
			},
			Timestamp: time.Now(),
		},
	})
}

// broadcastToRoom sends a message to all clients in a room
func (h *Hub) broadcastToRoom(bm *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[bm.Room] {
		if bm.Exclude != nil && client.ID == bm.Exclude.ID {
			continue
		}

		select {
		case client.Send <- bm.Message:
		default:
			// Slow viewers lose messages; they are never disconnected for it.
			h.dropped.Add(1)
		}
	}
}

// enqueue never blocks: the console writer calls it for every output line.
func (h *Hub) enqueue(bm *BroadcastMessage) {
	select {
	case h.broadcast <- bm:
	default:
		if n := h.dropped.Add(1); n == 1 || n%1000 == 0 {
			log.Printf("[WebSocket] Broadcast queue full, %d messages dropped so far", n)
		}
	}
}

// GetRoomSize returns the number of clients in a room
func (h *Hub) GetRoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Dropped returns how many messages were discarded for slow viewers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// BroadcastToRoom queues a message for every client in a room. It drops the
// message instead of blocking when the hub is saturated.
func (h *Hub) BroadcastToRoom(room string, message *Message) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	h.enqueue(&BroadcastMessage{Room: room, Message: message})
}

// Leave unregisters a client, or does nothing once the hub has stopped.
func (h *Hub) Leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// shutdown closes all connections gracefully
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room, clients := range h.rooms {
		for client := range clients {
			close(client.Send)
			if client.Conn != nil {
				client.Conn.Close()
			}
		}
		delete(h.rooms, room)
	}
	clear(h.clients)
	close(h.done)
}

// ReadPump pumps messages from the connection to handle until the peer goes
// away, then unregisters the client.
func (c *Client) ReadPump(handle func(*Client, Message)) {
	defer func() {
		c.Hub.Leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(64 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] Read error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WebSocket] Failed to parse message: %v", err)
			c.SendMessage("error", map[string]any{"message": "invalid message"})
			continue
		}

		msg.Timestamp = time.Now()
		if handle != nil {
			handle(c, msg)
		}
	}
}

// WritePump pumps messages from hub to WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("[WebSocket] Failed to marshal message: %v", err)
				w.Close()
				continue
			}
			w.Write(data)

			// Batch whatever queued up while writing
			n := len(c.Send)
			for i := 0; i < n; i++ {
				msg, ok := <-c.Send
				if !ok {
					break
				}
				data, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				w.Write([]byte("\n"))
				w.Write(data)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage sends a message to this specific client
func (c *Client) SendMessage(msgType string, payload any) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("client send channel is closed")
		}
	}()

	msg := &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	select {
	case c.Send <- msg:
		return nil
	default:
		return fmt.Errorf("client send channel is full")
	}
}
