package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/patchnotes/api/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	NoteKey string
	Conn    *websocket.Conn
	Send    chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend queues data without blocking. It reports false when the client
// is closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once. Both the hub loop and
// the connection teardown path may race to close a client.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Hub maintains active WebSocket connections, grouped by the note key the
// client subscribed to.
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	NoteKey string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.NoteKey] == nil {
				h.clients[client.NoteKey] = make(map[*Client]bool)
			}
			h.clients[client.NoteKey][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for note %s", client.NoteKey)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.NoteKey]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					client.closeSend()
					if len(clients) == 0 {
						delete(h.clients, client.NoteKey)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from note %s", client.NoteKey)

		case msg := <-h.broadcast:
			// Full write lock: slow clients are dropped from the map here.
			h.mu.Lock()
			if clients, ok := h.clients[msg.NoteKey]; ok {
				for client := range clients {
					if !client.trySend(msg.Message) {
						client.closeSend()
						delete(clients, client)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.NoteKey)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastStage announces the pipeline stage currently executing.
func (h *Hub) BroadcastStage(noteKey, stage string) {
	h.send(noteKey, model.WSStageMessage{
		Type:    model.WSMessageTypeStage,
		NoteKey: noteKey,
		Stage:   stage,
	})
}

// BroadcastProgress sends a render progress update to all note subscribers.
func (h *Hub) BroadcastProgress(noteKey string, state model.RenderState, percent int) {
	h.send(noteKey, model.WSProgressMessage{
		Type:            model.WSMessageTypeProgress,
		NoteKey:         noteKey,
		State:           state,
		ProgressPercent: percent,
	})
}

// BroadcastComplete sends a completion message to all note subscribers.
func (h *Hub) BroadcastComplete(noteKey, videoURL string) {
	h.send(noteKey, model.WSCompleteMessage{
		Type:     model.WSMessageTypeComplete,
		NoteKey:  noteKey,
		VideoURL: videoURL,
	})
}

// BroadcastError sends an error message to all note subscribers.
func (h *Hub) BroadcastError(noteKey, code, message string) {
	h.send(noteKey, model.WSErrorMessage{
		Type:    model.WSMessageTypeError,
		NoteKey: noteKey,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

func (h *Hub) send(noteKey string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal websocket message: %v", err)
		return
	}

	h.broadcast <- &BroadcastMessage{
		NoteKey: noteKey,
		Message: data,
	}
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, noteKey string) {
	client := &Client{
		NoteKey: noteKey,
		Conn:    c,
		Send:    make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			if !client.trySend(data) {
				break
			}
		}
	}
}
